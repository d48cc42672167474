package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AdminStore struct {
	pool *pgxpool.Pool
}

func NewAdminStore(pool *pgxpool.Pool) *AdminStore {
	return &AdminStore{pool: pool}
}

func (s *AdminStore) PickAvailable(ctx context.Context) (*int64, error) {
	query := `
		SELECT id
		FROM admins
		WHERE is_available = true
		ORDER BY last_login DESC NULLS LAST, id
		LIMIT 1`

	var id int64
	err := s.pool.QueryRow(ctx, query).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pick available admin: %w", err)
	}
	return &id, nil
}

func (s *AdminStore) Exists(ctx context.Context, adminID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM admins WHERE id = $1)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, adminID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return exists, nil
}
