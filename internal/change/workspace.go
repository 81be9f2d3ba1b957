package change

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fanout/internal/domain"
	"github.com/gosuda/fanout/internal/metrics"
)

// Hints are the identifying fields available for one change.
type Hints struct {
	EntityType  domain.EntityType
	EntityID    string
	WorkspaceID string
	BoardID     string
	ColumnID    string
	CardID      string
}

// WorkspaceResolver finds the workspace that owns a change, memoizing
// lookups in a WorkspaceCache it owns.
type WorkspaceResolver struct {
	repo    domain.OwnershipRepository
	cache   *WorkspaceCache
	metrics *metrics.Metrics
}

// NewWorkspaceResolver creates a resolver. repo may be nil, in which case only
// directly derivable workspace ids resolve.
func NewWorkspaceResolver(repo domain.OwnershipRepository, m *metrics.Metrics) *WorkspaceResolver {
	return &WorkspaceResolver{
		repo:    repo,
		cache:   NewWorkspaceCache(),
		metrics: m,
	}
}

// Cache exposes the resolver's cache for inspection.
func (r *WorkspaceResolver) Cache() *WorkspaceCache {
	return r.cache
}

// Invalidate forces the next resolution through boardID to hit the repository.
func (r *WorkspaceResolver) Invalidate(boardID string) {
	if boardID == "" {
		return
	}
	n := r.cache.Invalidate(boardID)
	r.metrics.CacheResult("invalidate")
	log.Debug().Str("board_id", boardID).Int("removed", n).Msg("workspace cache invalidated")
}

// Resolve returns the owning workspace id, or false when no chain of
// ownership can be established. The cache key is the board id when one is
// known, else the column id, else the card id. This is the reverse of
// most-specific-first: boards are the unit Invalidate operates on.
func (r *WorkspaceResolver) Resolve(ctx context.Context, h Hints) (string, bool) {
	if h.WorkspaceID != "" {
		return h.WorkspaceID, true
	}
	if h.EntityType == domain.EntityWorkspace && h.EntityID != "" {
		return h.EntityID, true
	}

	switch h.EntityType {
	case domain.EntityCard:
		if h.CardID == "" {
			h.CardID = h.EntityID
		}
	case domain.EntityColumn:
		if h.ColumnID == "" {
			h.ColumnID = h.EntityID
		}
	case domain.EntityBoard:
		if h.BoardID == "" {
			h.BoardID = h.EntityID
		}
	}

	if r.repo == nil {
		return "", false
	}

	var (
		key  string
		load LoadFunc
	)
	switch {
	case h.BoardID != "":
		key = boardKey(h.BoardID)
		load = func(ctx context.Context) (*domain.Ownership, error) { return r.repo.OwnerOfBoard(ctx, h.BoardID) }
	case h.ColumnID != "":
		key = columnKey(h.ColumnID)
		load = func(ctx context.Context) (*domain.Ownership, error) { return r.repo.OwnerOfColumn(ctx, h.ColumnID) }
	case h.CardID != "":
		key = cardKey(h.CardID)
		load = func(ctx context.Context) (*domain.Ownership, error) { return r.repo.OwnerOfCard(ctx, h.CardID) }
	default:
		r.metrics.CacheResult("unresolved")
		return "", false
	}

	own, hit, err := r.cache.Get(ctx, key, load)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("workspace lookup failed")
		}
		r.metrics.CacheResult("unresolved")
		return "", false
	}

	if hit {
		r.metrics.CacheResult("hit")
	} else {
		r.metrics.CacheResult("miss")
	}

	if own.WorkspaceID == "" {
		return "", false
	}
	return own.WorkspaceID, true
}
