package handler

import (
	"context"
	"sync"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

// Mock GrantService
type mockGrants struct {
	mu      sync.Mutex
	calls   []domain.GrantItems
	outcome domain.GrantOutcome
	err     error
}

func (m *mockGrants) Consume(ctx context.Context, cmd domain.GrantItems) (domain.GrantOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmd)
	return m.outcome, m.err
}

func (m *mockGrants) last() domain.GrantItems {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

// Mock QueryService
type mockQueries struct {
	views []domain.InventoryItemView
	err   error
	user  string
}

func (m *mockQueries) ListForUser(ctx context.Context, userID string) ([]domain.InventoryItemView, error) {
	m.user = userID
	var out []domain.InventoryItemView
	for _, v := range m.views {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	if out == nil {
		out = []domain.InventoryItemView{}
	}
	return out, m.err
}

func (m *mockQueries) ListAll(ctx context.Context) ([]domain.InventoryItemView, error) {
	return m.views, m.err
}

// Mock Reconciler
type mockReconciler struct {
	report domain.ReconcileReport
	err    error
	calls  int
}

func (m *mockReconciler) Reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	m.calls++
	return m.report, m.err
}
