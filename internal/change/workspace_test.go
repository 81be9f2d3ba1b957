package change_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/fanout/internal/change"
	"github.com/gosuda/fanout/internal/domain"
)

func TestWorkspaceResolver_DirectDerivationSkipsLookup(t *testing.T) {
	t.Parallel()

	repo := &mockOwnershipRepo{}
	r := change.NewWorkspaceResolver(repo, nil)

	ws, ok := r.Resolve(t.Context(), change.Hints{EntityType: domain.EntityBoard, EntityID: "b1", WorkspaceID: "ws1"})
	require.True(t, ok)
	assert.Equal(t, "ws1", ws)

	ws, ok = r.Resolve(t.Context(), change.Hints{EntityType: domain.EntityWorkspace, EntityID: "ws2"})
	require.True(t, ok)
	assert.Equal(t, "ws2", ws)

	assert.Empty(t, repo.Calls())
	assert.Zero(t, r.Cache().Len())
}

func TestWorkspaceResolver_CachesLookups(t *testing.T) {
	t.Parallel()

	repo := &mockOwnershipRepo{board: boardsIn(map[string]string{"b1": "ws1"})}
	r := change.NewWorkspaceResolver(repo, nil)

	for range 3 {
		ws, ok := r.Resolve(t.Context(), change.Hints{EntityType: domain.EntityColumn, EntityID: "col1", BoardID: "b1"})
		require.True(t, ok)
		assert.Equal(t, "ws1", ws)
	}

	assert.Equal(t, []string{"board:b1"}, repo.Calls())
	own, ok := r.Cache().Peek("board:b1")
	require.True(t, ok)
	assert.Equal(t, "ws1", own.WorkspaceID)
}

func TestWorkspaceResolver_KeyChoice(t *testing.T) {
	t.Parallel()

	owner := func(_ context.Context, _ string) (*domain.Ownership, error) {
		return &domain.Ownership{BoardID: "b1", WorkspaceID: "ws1"}, nil
	}

	tests := []struct {
		name     string
		hints    change.Hints
		wantCall string
	}{
		{name: "board over column over card", hints: change.Hints{EntityType: domain.EntityCardDetail, EntityID: "s1", CardID: "c1", ColumnID: "col1", BoardID: "b1"}, wantCall: "board:b1"},
		{name: "board id wins", hints: change.Hints{EntityType: domain.EntityCard, EntityID: "c1", ColumnID: "col1", BoardID: "b1"}, wantCall: "board:b1"},
		{name: "column when no board", hints: change.Hints{EntityType: domain.EntityCard, EntityID: "c1", ColumnID: "col1"}, wantCall: "column:col1"},
		{name: "card entity id", hints: change.Hints{EntityType: domain.EntityCard, EntityID: "c1"}, wantCall: "card:c1"},
		{name: "card detail via card id", hints: change.Hints{EntityType: domain.EntityCardDetail, EntityID: "s1", CardID: "c9"}, wantCall: "card:c9"},
		{name: "board entity id", hints: change.Hints{EntityType: domain.EntityBoard, EntityID: "b7"}, wantCall: "board:b7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &mockOwnershipRepo{board: owner, column: owner, card: owner}
			r := change.NewWorkspaceResolver(repo, nil)

			ws, ok := r.Resolve(t.Context(), tt.hints)
			require.True(t, ok)
			assert.Equal(t, "ws1", ws)
			assert.Equal(t, []string{tt.wantCall}, repo.Calls())
		})
	}
}

func TestWorkspaceResolver_Unresolved(t *testing.T) {
	t.Parallel()

	t.Run("no hints", func(t *testing.T) {
		t.Parallel()
		r := change.NewWorkspaceResolver(&mockOwnershipRepo{}, nil)
		_, ok := r.Resolve(t.Context(), change.Hints{EntityType: domain.EntityMember})
		assert.False(t, ok)
	})

	t.Run("not found is not cached", func(t *testing.T) {
		t.Parallel()
		repo := &mockOwnershipRepo{}
		r := change.NewWorkspaceResolver(repo, nil)

		_, ok := r.Resolve(t.Context(), change.Hints{BoardID: "missing"})
		assert.False(t, ok)
		_, ok = r.Resolve(t.Context(), change.Hints{BoardID: "missing"})
		assert.False(t, ok)

		assert.Len(t, repo.Calls(), 2)
		assert.Zero(t, r.Cache().Len())
	})

	t.Run("repository error", func(t *testing.T) {
		t.Parallel()
		repo := &mockOwnershipRepo{board: func(context.Context, string) (*domain.Ownership, error) {
			return nil, errors.New("connection refused")
		}}
		r := change.NewWorkspaceResolver(repo, nil)

		_, ok := r.Resolve(t.Context(), change.Hints{BoardID: "b1"})
		assert.False(t, ok)
	})

	t.Run("nil repository", func(t *testing.T) {
		t.Parallel()
		r := change.NewWorkspaceResolver(nil, nil)
		_, ok := r.Resolve(t.Context(), change.Hints{BoardID: "b1"})
		assert.False(t, ok)
	})
}

func TestWorkspaceResolver_InvalidateRecomputes(t *testing.T) {
	t.Parallel()

	owners := map[string]string{"b1": "ws1"}
	var mu sync.Mutex
	repo := &mockOwnershipRepo{
		board: func(_ context.Context, id string) (*domain.Ownership, error) {
			mu.Lock()
			defer mu.Unlock()
			return &domain.Ownership{BoardID: id, WorkspaceID: owners[id]}, nil
		},
		card: func(_ context.Context, id string) (*domain.Ownership, error) {
			mu.Lock()
			defer mu.Unlock()
			return &domain.Ownership{BoardID: "b1", WorkspaceID: owners["b1"]}, nil
		},
	}
	r := change.NewWorkspaceResolver(repo, nil)

	ws, _ := r.Resolve(t.Context(), change.Hints{BoardID: "b1"})
	assert.Equal(t, "ws1", ws)
	ws, _ = r.Resolve(t.Context(), change.Hints{CardID: "c1"})
	assert.Equal(t, "ws1", ws)
	require.Equal(t, 2, r.Cache().Len())

	mu.Lock()
	owners["b1"] = "ws2"
	mu.Unlock()
	r.Invalidate("b1")

	assert.Zero(t, r.Cache().Len(), "entries derived through the board are dropped too")

	ws, _ = r.Resolve(t.Context(), change.Hints{BoardID: "b1"})
	assert.Equal(t, "ws2", ws)
	ws, _ = r.Resolve(t.Context(), change.Hints{CardID: "c1"})
	assert.Equal(t, "ws2", ws)
}

func TestWorkspaceCache_InvalidateUnknownBoard(t *testing.T) {
	t.Parallel()

	c := change.NewWorkspaceCache()
	assert.Zero(t, c.Invalidate("nope"))
}

func TestWorkspaceCache_LoadStartedBeforeInvalidateDoesNotPopulate(t *testing.T) {
	t.Parallel()

	c := change.NewWorkspaceCache()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		own, hit, err := c.Get(context.Background(), "board:b1", func(context.Context) (*domain.Ownership, error) {
			close(started)
			<-release
			return &domain.Ownership{BoardID: "b1", WorkspaceID: "stale"}, nil
		})
		assert.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "stale", own.WorkspaceID)
	}()

	<-started
	c.Invalidate("b1")
	close(release)
	<-done

	_, ok := c.Peek("board:b1")
	assert.False(t, ok)
}

func TestWorkspaceCache_ConcurrentMissesShareLoad(t *testing.T) {
	t.Parallel()

	c := change.NewWorkspaceCache()
	var loads atomic.Int32
	gate := make(chan struct{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			own, _, err := c.Get(context.Background(), "board:b1", func(context.Context) (*domain.Ownership, error) {
				loads.Add(1)
				<-gate
				return &domain.Ownership{BoardID: "b1", WorkspaceID: "ws1"}, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "ws1", own.WorkspaceID)
		}()
	}

	close(gate)
	wg.Wait()

	assert.GreaterOrEqual(t, loads.Load(), int32(1))
	assert.LessOrEqual(t, loads.Load(), int32(8))
	assert.Equal(t, 1, c.Len())
}

func TestWorkspaceCache_ConcurrentReadsAndInvalidations(t *testing.T) {
	t.Parallel()

	c := change.NewWorkspaceCache()
	load := func(context.Context) (*domain.Ownership, error) {
		return &domain.Ownership{BoardID: "b1", WorkspaceID: "ws1"}, nil
	}

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if i%4 == 0 {
					c.Invalidate("b1")
					continue
				}
				own, _, err := c.Get(context.Background(), "board:b1", load)
				assert.NoError(t, err)
				assert.Equal(t, "ws1", own.WorkspaceID)
			}
		}()
	}
	wg.Wait()
}
