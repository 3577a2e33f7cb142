package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

// MemoryRepository keeps entities in a map and applies the same conflict
// rules as the SQL adapter. It backs the "memory" storage driver and tests.
type MemoryRepository[T any, F any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string

	id        func(T) string
	matches   func(F, T) bool
	clone     func(T) T
	version   func(*T) *int  // nil for unversioned entities
	uniqueKey func(T) string // nil when only the id is unique
}

func NewMemoryInventoryRepository() *MemoryRepository[domain.InventoryRecord, domain.InventoryFilter] {
	return &MemoryRepository[domain.InventoryRecord, domain.InventoryFilter]{
		items:   make(map[string]domain.InventoryRecord),
		id:      func(r domain.InventoryRecord) string { return r.ID },
		matches: domain.InventoryFilter.Matches,
		clone:   domain.InventoryRecord.Clone,
		version: func(r *domain.InventoryRecord) *int { return &r.Version },
		uniqueKey: func(r domain.InventoryRecord) string {
			return r.UserID + "\x00" + r.CatalogItemID
		},
	}
}

func NewMemoryCatalogRepository() *MemoryRepository[domain.CatalogItem, domain.CatalogFilter] {
	return &MemoryRepository[domain.CatalogItem, domain.CatalogFilter]{
		items:   make(map[string]domain.CatalogItem),
		id:      func(c domain.CatalogItem) string { return c.ID },
		matches: domain.CatalogFilter.Matches,
		clone:   func(c domain.CatalogItem) domain.CatalogItem { return c },
	}
}

func (m *MemoryRepository[T, F]) GetByID(ctx context.Context, id string) (*T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	entity = m.clone(entity)
	return &entity, nil
}

func (m *MemoryRepository[T, F]) GetAll(ctx context.Context, filter F) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]T, 0)
	for _, id := range m.order {
		if entity := m.items[id]; m.matches(filter, entity) {
			out = append(out, m.clone(entity))
		}
	}
	return out, nil
}

func (m *MemoryRepository[T, F]) GetSingle(ctx context.Context, filter F) (*T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		if entity := m.items[id]; m.matches(filter, entity) {
			entity = m.clone(entity)
			return &entity, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository[T, F]) Create(ctx context.Context, entity T) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	id := m.id(entity)
	if _, exists := m.items[id]; exists {
		return zero, fmt.Errorf("id %s already exists: %w", id, domain.ErrConcurrentModification)
	}
	if m.uniqueKey != nil {
		key := m.uniqueKey(entity)
		for _, existing := range m.items {
			if m.uniqueKey(existing) == key {
				return zero, fmt.Errorf("duplicate key: %w", domain.ErrConcurrentModification)
			}
		}
	}

	entity = m.clone(entity)
	if m.version != nil {
		*m.version(&entity) = 1
	}
	m.items[id] = entity
	m.order = append(m.order, id)
	return m.clone(entity), nil
}

func (m *MemoryRepository[T, F]) Update(ctx context.Context, entity T) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	id := m.id(entity)
	stored, exists := m.items[id]
	if !exists {
		return zero, fmt.Errorf("id %s no longer exists: %w", id, domain.ErrConcurrentModification)
	}

	entity = m.clone(entity)
	if m.version != nil {
		if *m.version(&stored) != *m.version(&entity) {
			return zero, domain.ErrConcurrentModification
		}
		*m.version(&entity)++
	}
	m.items[id] = entity
	return m.clone(entity), nil
}

func (m *MemoryRepository[T, F]) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[id]; !exists {
		return nil
	}
	delete(m.items, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}
