package application

import (
	"context"

	"github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
	"github.com/google/uuid"
)

// EventMetadataFromContext derives metadata for events written under ctx.
// The correlation id joins events with request logs; a fresh one is minted
// for callers without one. causationID names what triggered the write,
// typically the transaction serial number.
func EventMetadataFromContext(ctx context.Context, actor, causationID string) domain.EventMetadata {
	correlationID := observability.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if causationID == "" {
		causationID = correlationID
	}
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   causationID,
		Actor:         actor,
	}
}

// ApplyEventMetadata stamps meta on every event that accepts it.
func ApplyEventMetadata(events []domain.DomainEvent, meta domain.EventMetadata) {
	for _, e := range events {
		if s, ok := e.(interface{ SetMetadata(domain.EventMetadata) }); ok {
			s.SetMetadata(meta)
		}
	}
}
