package domain

import (
	"time"

	"github.com/google/uuid"
)

// Aggregate carries the identity, audit timestamps, optimistic lock version
// and pending events shared by every aggregate root. Embed it by value.
type Aggregate struct {
	id        uuid.UUID
	createdAt time.Time
	updatedAt time.Time
	version   int
	pending   []DomainEvent
}

// NewAggregate starts a fresh aggregate with a random id at version 0.
func NewAggregate() Aggregate {
	now := time.Now().UTC()
	return Aggregate{id: uuid.New(), createdAt: now, updatedAt: now}
}

// RestoreAggregate rebuilds the aggregate header from a stored row.
func RestoreAggregate(id uuid.UUID, createdAt, updatedAt time.Time, version int) Aggregate {
	return Aggregate{
		id:        id,
		createdAt: createdAt.UTC(),
		updatedAt: updatedAt.UTC(),
		version:   version,
	}
}

func (a *Aggregate) ID() uuid.UUID        { return a.id }
func (a *Aggregate) CreatedAt() time.Time { return a.createdAt }
func (a *Aggregate) UpdatedAt() time.Time { return a.updatedAt }
func (a *Aggregate) Version() int         { return a.version }

// Touch stamps the aggregate as modified now.
func (a *Aggregate) Touch() {
	a.updatedAt = time.Now().UTC()
}

// IncrementVersion is called by repositories after a successful write.
func (a *Aggregate) IncrementVersion() {
	a.version++
}

// Rewind restores the version and pending events captured before a write
// whose transaction did not commit.
func (a *Aggregate) Rewind(version int, pending []DomainEvent) {
	a.version = version
	a.pending = pending
}

// Record queues an event to be written to the outbox with the next save.
func (a *Aggregate) Record(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// DomainEvents returns the events recorded since the last save.
func (a *Aggregate) DomainEvents() []DomainEvent {
	return a.pending
}

// ClearDomainEvents drops recorded events once they have been persisted.
func (a *Aggregate) ClearDomainEvents() {
	a.pending = nil
}
