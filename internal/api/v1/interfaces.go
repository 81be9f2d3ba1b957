package v1

import (
	"context"

	"github.com/gosuda/fanout/internal/domain"
)

// ChangeEmitter accepts mutation reports for broadcast.
// *change.Broadcaster satisfies this interface.
type ChangeEmitter interface {
	Emit(ctx context.Context, n domain.ChangeNotice)
}

// CacheInvalidator drops cached ownership for a board.
// *change.WorkspaceResolver satisfies this interface.
type CacheInvalidator interface {
	Invalidate(boardID string)
}
