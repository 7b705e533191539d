// Package handlers reacts to saga events delivered by the in-process bus.
package handlers

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
)

type sagaEvent struct {
	SerialNumber      string `json:"serial_number"`
	ProductCode       string `json:"product_code"`
	SagaState         string `json:"saga_state"`
	ErrorCode         string `json:"error_code"`
	NeedsCompensation bool   `json:"needs_compensation"`
	Reason            string `json:"reason"`
	LastState         string `json:"last_state"`
	Attempts          int    `json:"attempts"`
}

// SagaEventLogger writes an operational log line for every saga event.
// Escalations are logged at error level so they reach alerting.
type SagaEventLogger struct {
	logger *slog.Logger
}

// NewSagaEventLogger creates the handler.
func NewSagaEventLogger(logger *slog.Logger) *SagaEventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SagaEventLogger{logger: logger}
}

func (h *SagaEventLogger) RoutingKeys() []string {
	return []string{
		domain.RoutingKeySubscriptionCompleted,
		domain.RoutingKeySubscriptionFailed,
		domain.RoutingKeyCompensationCompleted,
		domain.RoutingKeyCompensationEscalated,
	}
}

func (h *SagaEventLogger) Handle(ctx context.Context, env *eventbus.Envelope) error {
	var ev sagaEvent
	if err := env.Decode(&ev); err != nil {
		return err
	}
	logger := h.logger.With(
		"event_id", env.EventID.String(),
		"routing_key", env.RoutingKey,
		"serial_number", ev.SerialNumber,
		"correlation_id", env.Metadata.CorrelationID,
	)

	switch env.RoutingKey {
	case domain.RoutingKeySubscriptionCompleted:
		logger.InfoContext(ctx, "subscription settled", "product_code", ev.ProductCode)
	case domain.RoutingKeySubscriptionFailed:
		logger.WarnContext(ctx, "subscription failed",
			"saga_state", ev.SagaState,
			"error_code", ev.ErrorCode,
			"needs_compensation", ev.NeedsCompensation,
		)
	case domain.RoutingKeyCompensationCompleted:
		logger.InfoContext(ctx, "subscription compensated", "attempts", ev.Attempts)
	case domain.RoutingKeyCompensationEscalated:
		logger.ErrorContext(ctx, "manual intervention required",
			"last_state", ev.LastState,
			"reason", ev.Reason,
			"attempts", ev.Attempts,
		)
	}
	return nil
}
