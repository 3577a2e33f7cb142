package port

import (
	"context"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

// Repository is the storage-agnostic persistence port for one aggregate
// type T filtered by F.
type Repository[T any, F any] interface {
	// GetByID returns nil, nil when no entity has the id
	GetByID(ctx context.Context, id string) (*T, error)

	// GetAll returns every entity matching filter; the zero filter matches all
	GetAll(ctx context.Context, filter F) ([]T, error)

	// GetSingle returns the first entity matching filter, or nil, nil
	GetSingle(ctx context.Context, filter F) (*T, error)

	// Create persists a new entity, returns domain.ErrConcurrentModification on a unique key collision
	Create(ctx context.Context, entity T) (T, error)

	// Update persists entity, returns domain.ErrConcurrentModification if it changed since it was read
	Update(ctx context.Context, entity T) (T, error)

	// Remove deletes the entity with id; removing a missing id is not an error
	Remove(ctx context.Context, id string) error
}

type InventoryRepository = Repository[domain.InventoryRecord, domain.InventoryFilter]

type CatalogRepository = Repository[domain.CatalogItem, domain.CatalogFilter]
