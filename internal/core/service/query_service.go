package service

import (
	"context"
	"fmt"

	"github.com/patyfb04/play-inventory/internal/core/domain"
	"github.com/patyfb04/play-inventory/internal/port"
)

type InventoryQueryService struct {
	inventory port.InventoryRepository
	catalog   port.CatalogRepository
}

func NewInventoryQueryService(inventory port.InventoryRepository, catalog port.CatalogRepository) *InventoryQueryService {
	return &InventoryQueryService{inventory: inventory, catalog: catalog}
}

// ListForUser returns the user's items joined with their catalog entries.
// Records whose catalog item no longer exists are left out.
func (s *InventoryQueryService) ListForUser(ctx context.Context, userID string) ([]domain.InventoryItemView, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidCommand)
	}
	return s.list(ctx, domain.InventoryFilter{UserID: userID}, false)
}

// ListAll joins every record against the whole catalog projection, which is
// far smaller than the inventory table.
func (s *InventoryQueryService) ListAll(ctx context.Context) ([]domain.InventoryItemView, error) {
	return s.list(ctx, domain.InventoryFilter{}, true)
}

func (s *InventoryQueryService) list(ctx context.Context, filter domain.InventoryFilter, wholeCatalog bool) ([]domain.InventoryItemView, error) {
	records, err := s.inventory.GetAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	if len(records) == 0 {
		return []domain.InventoryItemView{}, nil
	}

	var catalogFilter domain.CatalogFilter
	if !wholeCatalog {
		seen := make(map[string]struct{}, len(records))
		for _, r := range records {
			if _, ok := seen[r.CatalogItemID]; ok {
				continue
			}
			seen[r.CatalogItemID] = struct{}{}
			catalogFilter.IDs = append(catalogFilter.IDs, r.CatalogItemID)
		}
	}
	items, err := s.catalog.GetAll(ctx, catalogFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog items: %w", err)
	}
	byID := make(map[string]domain.CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	views := make([]domain.InventoryItemView, 0, len(records))
	for _, r := range records {
		item, ok := byID[r.CatalogItemID]
		if !ok {
			continue
		}
		views = append(views, domain.InventoryItemView{
			UserID:        r.UserID,
			CatalogItemID: r.CatalogItemID,
			Name:          item.Name,
			Description:   item.Description,
			Quantity:      r.Quantity,
			AcquiredDate:  r.AcquiredDate,
		})
	}
	return views, nil
}
