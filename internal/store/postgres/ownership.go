package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/fanout/internal/domain"
)

type OwnershipRepo struct {
	pool *pgxpool.Pool
}

func NewOwnershipRepo(pool *pgxpool.Pool) *OwnershipRepo {
	return &OwnershipRepo{pool: pool}
}

func (r *OwnershipRepo) OwnerOfBoard(ctx context.Context, boardID string) (*domain.Ownership, error) {
	own, err := r.scan(ctx,
		`SELECT b.id::text, b.workspace_id::text
		 FROM boards b WHERE b.id::text = $1`,
		boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("ownershipRepo.OwnerOfBoard: %w", err)
	}
	return own, nil
}

func (r *OwnershipRepo) OwnerOfColumn(ctx context.Context, columnID string) (*domain.Ownership, error) {
	own, err := r.scan(ctx,
		`SELECT b.id::text, b.workspace_id::text
		 FROM "columns" col
		 JOIN boards b ON b.id = col.board_id
		 WHERE col.id::text = $1`,
		columnID,
	)
	if err != nil {
		return nil, fmt.Errorf("ownershipRepo.OwnerOfColumn: %w", err)
	}
	return own, nil
}

func (r *OwnershipRepo) OwnerOfCard(ctx context.Context, cardID string) (*domain.Ownership, error) {
	own, err := r.scan(ctx,
		`SELECT b.id::text, b.workspace_id::text
		 FROM cards c
		 JOIN "columns" col ON col.id = c.column_id
		 JOIN boards b ON b.id = col.board_id
		 WHERE c.id::text = $1`,
		cardID,
	)
	if err != nil {
		return nil, fmt.Errorf("ownershipRepo.OwnerOfCard: %w", err)
	}
	return own, nil
}

func (r *OwnershipRepo) scan(ctx context.Context, query, id string) (*domain.Ownership, error) {
	var (
		own         domain.Ownership
		workspaceID *string
	)

	err := r.pool.QueryRow(ctx, query, id).Scan(&own.BoardID, &workspaceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if workspaceID == nil || *workspaceID == "" {
		return nil, domain.ErrNotFound
	}

	own.WorkspaceID = *workspaceID
	return &own, nil
}

type MembershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

func (r *MembershipRepo) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	var member bool

	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM workspace_members
		   WHERE workspace_id::text = $1 AND user_id::text = $2
		 )`,
		workspaceID, userID,
	).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("membershipRepo.IsWorkspaceMember: %w", err)
	}

	return member, nil
}
