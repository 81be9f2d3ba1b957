package domain

import "context"

// Ownership is the chain from a board up to its workspace.
type Ownership struct {
	BoardID     string
	WorkspaceID string
}

// OwnershipRepository resolves the owning workspace of board-scoped entities.
// Implementations return ErrNotFound when the chain cannot be established.
type OwnershipRepository interface {
	OwnerOfBoard(ctx context.Context, boardID string) (*Ownership, error)
	OwnerOfColumn(ctx context.Context, columnID string) (*Ownership, error)
	OwnerOfCard(ctx context.Context, cardID string) (*Ownership, error)
}

// MembershipRepository answers topic authorization questions.
type MembershipRepository interface {
	IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
}
