package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

// Mock InventoryRepository
type mockInventoryRepo struct {
	mu      sync.Mutex
	records map[string]domain.InventoryRecord

	// updateConflicts makes the next n Update calls fail as if a concurrent
	// writer got there first.
	updateConflicts int
	updateCalls     int
	createCalls     int
}

func newMockInventoryRepo() *mockInventoryRepo {
	return &mockInventoryRepo{records: make(map[string]domain.InventoryRecord)}
}

func (m *mockInventoryRepo) GetByID(ctx context.Context, id string) (*domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	r = r.Clone()
	return &r, nil
}

func (m *mockInventoryRepo) GetAll(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.InventoryRecord
	for _, r := range m.records {
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *mockInventoryRepo) GetSingle(ctx context.Context, filter domain.InventoryFilter) (*domain.InventoryRecord, error) {
	all, _ := m.GetAll(ctx, filter)
	if len(all) == 0 {
		return nil, nil
	}
	return &all[0], nil
}

func (m *mockInventoryRepo) Create(ctx context.Context, r domain.InventoryRecord) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	for _, existing := range m.records {
		if existing.UserID == r.UserID && existing.CatalogItemID == r.CatalogItemID {
			return domain.InventoryRecord{}, domain.ErrConcurrentModification
		}
	}
	r.Version = 1
	m.records[r.ID] = r.Clone()
	return r, nil
}

func (m *mockInventoryRepo) Update(ctx context.Context, r domain.InventoryRecord) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateCalls++
	if m.updateConflicts > 0 {
		m.updateConflicts--
		return domain.InventoryRecord{}, domain.ErrConcurrentModification
	}
	stored, ok := m.records[r.ID]
	if !ok || stored.Version != r.Version {
		return domain.InventoryRecord{}, domain.ErrConcurrentModification
	}
	r.Version++
	m.records[r.ID] = r.Clone()
	return r, nil
}

func (m *mockInventoryRepo) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *mockInventoryRepo) only(userID, itemID string) (domain.InventoryRecord, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found domain.InventoryRecord
	n := 0
	for _, r := range m.records {
		if r.UserID == userID && r.CatalogItemID == itemID {
			found = r
			n++
		}
	}
	return found, n
}

// Mock CatalogRepository
type mockCatalogRepo struct {
	mu    sync.Mutex
	items map[string]domain.CatalogItem
	order []string

	failOn  string
	writes  int
	filters []domain.CatalogFilter
}

var errStorage = errors.New("storage unavailable")

func newMockCatalogRepo(items ...domain.CatalogItem) *mockCatalogRepo {
	m := &mockCatalogRepo{items: make(map[string]domain.CatalogItem)}
	for _, item := range items {
		m.items[item.ID] = item
		m.order = append(m.order, item.ID)
	}
	return m
}

func (m *mockCatalogRepo) GetByID(ctx context.Context, id string) (*domain.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *mockCatalogRepo) GetAll(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.filters = append(m.filters, filter)

	var out []domain.CatalogItem
	for _, id := range m.order {
		if item, ok := m.items[id]; ok && filter.Matches(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockCatalogRepo) GetSingle(ctx context.Context, filter domain.CatalogFilter) (*domain.CatalogItem, error) {
	all, _ := m.GetAll(ctx, filter)
	if len(all) == 0 {
		return nil, nil
	}
	return &all[0], nil
}

func (m *mockCatalogRepo) Create(ctx context.Context, item domain.CatalogItem) (domain.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == m.failOn {
		return domain.CatalogItem{}, errStorage
	}
	if _, ok := m.items[item.ID]; ok {
		return domain.CatalogItem{}, domain.ErrConcurrentModification
	}
	m.writes++
	m.items[item.ID] = item
	m.order = append(m.order, item.ID)
	return item, nil
}

func (m *mockCatalogRepo) Update(ctx context.Context, item domain.CatalogItem) (domain.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == m.failOn {
		return domain.CatalogItem{}, errStorage
	}
	m.writes++
	m.items[item.ID] = item
	return item, nil
}

func (m *mockCatalogRepo) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == m.failOn {
		return errStorage
	}
	m.writes++
	delete(m.items, id)
	return nil
}

func (m *mockCatalogRepo) snapshot() map[string]domain.CatalogItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.CatalogItem, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out
}

// Mock EventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	failOn string
	fails  int
}

func (m *mockPublisher) Publish(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fails > 0 && (m.failOn == "" || m.failOn == event.EventType()) {
		m.fails--
		return errors.New("broker unavailable")
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

func (m *mockPublisher) updates() []domain.InventoryUpdated {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.InventoryUpdated
	for _, e := range m.events {
		if u, ok := e.(domain.InventoryUpdated); ok {
			out = append(out, u)
		}
	}
	return out
}

// Mock CatalogSource
type mockSource struct {
	mu      sync.Mutex
	listing domain.CatalogListing
	calls   int
	// gate, when set, blocks ListAll until it is closed
	gate    chan struct{}
	entered chan struct{}
}

func (m *mockSource) ListAll(ctx context.Context) domain.CatalogListing {
	m.mu.Lock()
	m.calls++
	gate, entered := m.gate, m.entered
	listing := m.listing
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return listing
}

func (m *mockSource) set(listing domain.CatalogListing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listing = listing
}

// Mock Locker
type mockLocker struct {
	mu       sync.Mutex
	held     bool
	released int
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held {
		return nil, false, nil
	}
	m.held = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.held = false
		m.released++
		return nil
	}, true, nil
}
