package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/patyfb04/play-inventory/internal/core/domain"
	"github.com/patyfb04/play-inventory/internal/observability"
)

// LogPublisher writes events to the log instead of a broker. Used when no
// broker is configured.
type LogPublisher struct {
	logger observability.Logger
}

func NewLogPublisher(logger observability.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.logger.Info("event published",
		append(observability.TraceFields(ctx),
			zap.String("event_type", event.EventType()),
			zap.String("key", event.PartitionKey()),
			zap.Any("event", event),
		)...,
	)
	return nil
}
