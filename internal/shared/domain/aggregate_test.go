package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewAggregate(t *testing.T) {
	agg := domain.NewAggregate()

	assert.NotEqual(t, uuid.Nil, agg.ID())
	assert.Equal(t, time.UTC, agg.CreatedAt().Location())
	assert.Equal(t, agg.CreatedAt(), agg.UpdatedAt())
	assert.Zero(t, agg.Version())
	assert.Empty(t, agg.DomainEvents())
}

func TestAggregate_Touch(t *testing.T) {
	agg := domain.RestoreAggregate(uuid.New(), time.Now().Add(-time.Hour), time.Now().Add(-time.Hour), 1)
	before := agg.UpdatedAt()

	agg.Touch()

	assert.True(t, agg.UpdatedAt().After(before))
	assert.Equal(t, 1, agg.Version())
}

func TestAggregate_RecordAndClear(t *testing.T) {
	agg := domain.NewAggregate()

	agg.Record(domain.NewEventHeader(agg.ID(), "Test", "test.created"))
	agg.Record(domain.NewEventHeader(agg.ID(), "Test", "test.updated"))
	assert.Len(t, agg.DomainEvents(), 2)
	assert.Equal(t, "test.updated", agg.DomainEvents()[1].RoutingKey())

	agg.ClearDomainEvents()
	agg.IncrementVersion()

	assert.Empty(t, agg.DomainEvents())
	assert.Equal(t, 1, agg.Version())
}

func TestRestoreAggregate(t *testing.T) {
	id := uuid.New()
	created := time.Date(2026, 3, 2, 9, 30, 0, 0, time.FixedZone("CST", 8*3600))

	agg := domain.RestoreAggregate(id, created, created.Add(time.Minute), 7)

	assert.Equal(t, id, agg.ID())
	assert.Equal(t, 7, agg.Version())
	assert.True(t, agg.CreatedAt().Equal(created))
	assert.Equal(t, time.UTC, agg.CreatedAt().Location())
	assert.Empty(t, agg.DomainEvents())
}

func TestEventHeader_Metadata(t *testing.T) {
	h := domain.NewEventHeader(uuid.New(), "SubscriptionTransaction", "trading.subscription.failed")
	assert.Empty(t, h.Metadata())

	h.SetMetadata(domain.EventMetadata{CorrelationID: "c1", Actor: "api"})

	assert.Equal(t, "c1", h.Metadata().CorrelationID)
	assert.Equal(t, "SubscriptionTransaction", h.AggregateType())
	assert.NotEqual(t, uuid.Nil, h.EventID())
}
