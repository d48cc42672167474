package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/echodesk/internal/db"
	"github.com/lalith-99/echodesk/internal/models"
)

const notificationColumns = `id, user_id, user_role, type, title, content, is_read, created_at`

const insertNotification = `
	INSERT INTO notifications (user_id, user_role, type, title, content, is_read, created_at)
	VALUES ($1, $2, $3, $4, $5, false, now())
	RETURNING ` + notificationColumns

type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

func scanNotification(row scanner) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.UserRole,
		&n.Type,
		&n.Title,
		&n.Content,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *NotificationStore) Create(ctx context.Context, in models.NewNotification) (*models.Notification, error) {
	n, err := scanNotification(s.pool.QueryRow(ctx, insertNotification,
		in.UserID, in.UserRole, in.Type, in.Title, in.Content))
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// CreateBatch queues every insert on one pgx.Batch inside a transaction.
// Any failed row aborts the transaction, so either all rows land or none.
func (s *NotificationStore) CreateBatch(ctx context.Context, in []models.NewNotification) ([]models.Notification, error) {
	out := make([]models.Notification, 0, len(in))
	if len(in) == 0 {
		return out, nil
	}

	err := db.WithTx(ctx, s.pool, "notification_batch", func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, n := range in {
			batch.Queue(insertNotification, n.UserID, n.UserRole, n.Type, n.Title, n.Content)
		}

		br := tx.SendBatch(ctx, batch)
		for i := range in {
			n, err := scanNotification(br.QueryRow())
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("insert notification %d of %d: %w", i+1, len(in), err)
			}
			out = append(out, *n)
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *NotificationStore) ListByUser(ctx context.Context, userID int64, role models.Role, limit int) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND user_role = $2
		ORDER BY id DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, userID, role, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID int64, role models.Role, id int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE id = $1 AND user_id = $2 AND user_role = $3 AND is_read = false`,
		id, userID, role)
	if err != nil {
		return 0, fmt.Errorf("mark notification read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID int64, role models.Role) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE user_id = $1 AND user_role = $2 AND is_read = false`,
		userID, role)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *NotificationStore) MarkTypeRead(ctx context.Context, userID int64, role models.Role, typ models.NotificationType, ids []int64) (int64, error) {
	if len(ids) == 0 {
		ids = nil // encodes as NULL, which disables the id filter
	}

	var affected int64
	err := db.WithTx(ctx, s.pool, "mark_type_read", func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM notifications
				WHERE user_id = $1 AND user_role = $2 AND type = $3 AND is_read = false
				  AND ($4::bigint[] IS NULL OR id = ANY($4))
			)`, userID, role, typ, ids).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check unread of type: %w", err)
		}
		if !exists {
			return nil
		}

		tag, err := tx.Exec(ctx, `
			UPDATE notifications
			SET is_read = true
			WHERE user_id = $1 AND user_role = $2 AND type = $3 AND is_read = false
			  AND ($4::bigint[] IS NULL OR id = ANY($4))`,
			userID, role, typ, ids)
		if err != nil {
			return fmt.Errorf("mark type read: %w", err)
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (s *NotificationStore) Delete(ctx context.Context, userID int64, role models.Role, ids []int64) (int64, error) {
	var (
		query string
		args  []any
	)
	if len(ids) > 0 {
		query = `DELETE FROM notifications WHERE user_id = $1 AND user_role = $2 AND id = ANY($3)`
		args = []any{userID, role, ids}
	} else {
		query = `DELETE FROM notifications WHERE user_id = $1 AND user_role = $2 AND is_read = true`
		args = []any{userID, role}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
