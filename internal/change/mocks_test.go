package change_test

import (
	"context"
	"sync"

	"github.com/gosuda/fanout/internal/domain"
)

// mockOwnershipRepo implements domain.OwnershipRepository with function
// fields; unset functions report ErrNotFound. Calls are recorded in order.
type mockOwnershipRepo struct {
	mu     sync.Mutex
	calls  []string
	board  func(ctx context.Context, id string) (*domain.Ownership, error)
	column func(ctx context.Context, id string) (*domain.Ownership, error)
	card   func(ctx context.Context, id string) (*domain.Ownership, error)
}

func (m *mockOwnershipRepo) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockOwnershipRepo) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockOwnershipRepo) OwnerOfBoard(ctx context.Context, id string) (*domain.Ownership, error) {
	m.record("board:" + id)
	if m.board == nil {
		return nil, domain.ErrNotFound
	}
	return m.board(ctx, id)
}

func (m *mockOwnershipRepo) OwnerOfColumn(ctx context.Context, id string) (*domain.Ownership, error) {
	m.record("column:" + id)
	if m.column == nil {
		return nil, domain.ErrNotFound
	}
	return m.column(ctx, id)
}

func (m *mockOwnershipRepo) OwnerOfCard(ctx context.Context, id string) (*domain.Ownership, error) {
	m.record("card:" + id)
	if m.card == nil {
		return nil, domain.ErrNotFound
	}
	return m.card(ctx, id)
}

// boardsIn returns a board lookup backed by a board→workspace map.
func boardsIn(owners map[string]string) func(context.Context, string) (*domain.Ownership, error) {
	return func(_ context.Context, id string) (*domain.Ownership, error) {
		ws, ok := owners[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		return &domain.Ownership{BoardID: id, WorkspaceID: ws}, nil
	}
}

type published struct {
	topic   string
	payload []byte
}

// recordingPublisher captures every publish call.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: channel, payload: payload})
	return p.err
}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.topic
	}
	return out
}

func (p *recordingPublisher) Messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}
