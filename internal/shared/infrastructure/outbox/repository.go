package outbox

import (
	"context"
	"time"
)

// Writer appends messages alongside the aggregate changes that produced them.
// Implementations join the unit of work carried by ctx when one is open.
type Writer interface {
	Save(ctx context.Context, msg *Message) error
	SaveBatch(ctx context.Context, msgs []*Message) error
}

// Relay is the side of the outbox the processor drives.
type Relay interface {
	// GetUnpublished returns due messages, oldest first. Messages whose
	// NextRetryAt is in the future and dead-lettered messages are skipped.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error
	// DeleteOld purges messages published before the cutoff.
	DeleteOld(ctx context.Context, publishedBefore time.Time) (int64, error)
}

// Repository is the full outbox store.
type Repository interface {
	Writer
	Relay
	CountPending(ctx context.Context) (int64, error)
}
