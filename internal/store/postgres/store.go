package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/fanout/internal/domain"
)

type Store struct {
	pool      *pgxpool.Pool
	ownership *OwnershipRepo
	members   *MembershipRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return NewWithPool(pool), nil
}

// NewWithPool wraps an existing pool. Close closes the pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:      pool,
		ownership: NewOwnershipRepo(pool),
		members:   NewMembershipRepo(pool),
	}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Store.Ping: %w", err)
	}
	return nil
}

func (s *Store) Ownership() domain.OwnershipRepository   { return s.ownership }
func (s *Store) Membership() domain.MembershipRepository { return s.members }
