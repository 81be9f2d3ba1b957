package v1_test

import (
	"context"
	"sync"

	"github.com/gosuda/fanout/internal/domain"
	"github.com/gosuda/fanout/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers inject user and role into the context for DoCtx.
// ---------------------------------------------------------------------------

func roleCtx(role string) context.Context {
	return context.WithValue(context.Background(), middleware.ContextKeyUserRole, role)
}

func serviceCtx() context.Context {
	return roleCtx(middleware.RoleService)
}

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockEmitter struct {
	mu      sync.Mutex
	notices []domain.ChangeNotice
}

func (m *mockEmitter) Emit(_ context.Context, n domain.ChangeNotice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, n)
}

func (m *mockEmitter) Notices() []domain.ChangeNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ChangeNotice(nil), m.notices...)
}

type mockInvalidator struct {
	invalidateFunc func(boardID string)
}

func (m *mockInvalidator) Invalidate(boardID string) {
	m.invalidateFunc(boardID)
}
