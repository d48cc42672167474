package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/echodesk/internal/models"
)

// UserStore reads the booking site's customer table. The only column it
// writes is last_login, and only through ClaimWelcome.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// ActiveRecipients resolves members and owners from users and admins from
// admins. Admin accounts have no status column; all of them are active.
func (s *UserStore) ActiveRecipients(ctx context.Context, roles []models.Role) ([]models.Recipient, error) {
	var (
		customerRoles []string
		wantAdmins    bool
	)
	for _, r := range roles {
		switch r {
		case models.RoleMember, models.RoleOwner:
			customerRoles = append(customerRoles, string(r))
		case models.RoleAdmin:
			wantAdmins = true
		}
	}

	out := make([]models.Recipient, 0)
	if len(customerRoles) > 0 {
		rows, err := s.pool.Query(ctx, `
			SELECT id, role
			FROM users
			WHERE status = 'active' AND role = ANY($1)
			ORDER BY id`, customerRoles)
		if err != nil {
			return nil, fmt.Errorf("list active users: %w", err)
		}
		for rows.Next() {
			var r models.Recipient
			if err := rows.Scan(&r.UserID, &r.Role); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan user: %w", err)
			}
			out = append(out, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate users: %w", err)
		}
	}

	if wantAdmins {
		rows, err := s.pool.Query(ctx, `SELECT id FROM admins ORDER BY id`)
		if err != nil {
			return nil, fmt.Errorf("list admins: %w", err)
		}
		for rows.Next() {
			r := models.Recipient{Role: models.RoleAdmin}
			if err := rows.Scan(&r.UserID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan admin: %w", err)
			}
			out = append(out, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate admins: %w", err)
		}
	}

	return out, nil
}

// ClaimWelcome is a compare-and-set on last_login: the WHERE clause is the
// throttle, and the row lock taken by UPDATE makes it race free.
func (s *UserStore) ClaimWelcome(ctx context.Context, userID int64, now time.Time, window time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET last_login = $2
		WHERE id = $1 AND (last_login IS NULL OR last_login < $3)`,
		userID, now, now.Add(-window))
	if err != nil {
		return false, fmt.Errorf("claim welcome: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
