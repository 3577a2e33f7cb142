package handler

import (
	"context"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

type GrantService interface {
	Consume(ctx context.Context, cmd domain.GrantItems) (domain.GrantOutcome, error)
}

type QueryService interface {
	ListForUser(ctx context.Context, userID string) ([]domain.InventoryItemView, error)
	ListAll(ctx context.Context) ([]domain.InventoryItemView, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) (domain.ReconcileReport, error)
}
