package port

import (
	"context"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

type EventPublisher interface {
	// Publish returns once the broker accepted the event for delivery
	Publish(ctx context.Context, event domain.Event) error
}
