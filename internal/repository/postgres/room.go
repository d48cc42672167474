package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/db"
	"github.com/lalith-99/echodesk/internal/models"
)

// uniqueViolation is the SQLSTATE Postgres returns when an insert hits
// idx_chat_rooms_one_active.
const uniqueViolation = "23505"

const roomColumns = `id, room_key, user_id, admin_id, status, last_message, last_message_time, unread_count, created_at`

type RoomStore struct {
	pool *pgxpool.Pool
}

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

// scanner is the part of pgx.Row and pgx.Rows we need.
type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner, extra ...any) (*models.ChatRoom, error) {
	var r models.ChatRoom
	dest := append([]any{
		&r.ID,
		&r.Key,
		&r.UserID,
		&r.AdminID,
		&r.Status,
		&r.LastMessage,
		&r.LastMessageTime,
		&r.UnreadCount,
		&r.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RoomStore) getOne(ctx context.Context, what, query string, args ...any) (*models.ChatRoom, error) {
	room, err := scanRoom(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get room by %s: %w", what, err)
	}
	return room, nil
}

func (s *RoomStore) GetActiveByUser(ctx context.Context, userID int64) (*models.ChatRoom, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE user_id = $1 AND status = 'active'`
	return s.getOne(ctx, "user", query, userID)
}

func (s *RoomStore) GetActiveByKey(ctx context.Context, key string) (*models.ChatRoom, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE room_key = $1 AND status = 'active'`
	return s.getOne(ctx, "key", query, key)
}

func (s *RoomStore) GetLatestByKey(ctx context.Context, key string) (*models.ChatRoom, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE room_key = $1
		ORDER BY id DESC
		LIMIT 1`
	return s.getOne(ctx, "key", query, key)
}

func (s *RoomStore) Create(ctx context.Context, key string, userID int64, adminID *int64) (*models.ChatRoom, error) {
	query := `
		INSERT INTO chat_rooms (room_key, user_id, admin_id, status, created_at)
		VALUES ($1, $2, $3, 'active', now())
		RETURNING ` + roomColumns

	room, err := scanRoom(s.pool.QueryRow(ctx, query, key, userID, adminID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.DuplicateRoom(userID, err)
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}
	return room, nil
}

func (s *RoomStore) ListSummaries(ctx context.Context) ([]models.RoomSummary, error) {
	query := `
		SELECT r.id, r.room_key, r.user_id, r.admin_id, r.status, r.last_message,
		       r.last_message_time, r.unread_count, r.created_at,
		       COALESCE(u.name, ''), COALESCE(a.name, '')
		FROM chat_rooms r
		LEFT JOIN users u ON u.id = r.user_id
		LEFT JOIN admins a ON a.id = r.admin_id
		WHERE r.status = 'active'
		ORDER BY r.last_message_time DESC NULLS LAST, r.id DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list room summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.RoomSummary, 0)
	for rows.Next() {
		var userName, adminName string
		room, err := scanRoom(rows, &userName, &adminName)
		if err != nil {
			return nil, fmt.Errorf("scan room summary: %w", err)
		}
		summaries = append(summaries, models.RoomSummary{
			ChatRoom:  *room,
			UserName:  userName,
			AdminName: adminName,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room summaries: %w", err)
	}
	return summaries, nil
}

func (s *RoomStore) Close(ctx context.Context, key string) (*models.ChatRoom, error) {
	query := `
		UPDATE chat_rooms
		SET status = 'closed'
		WHERE room_key = $1 AND status = 'active'
		RETURNING ` + roomColumns

	room, err := scanRoom(s.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("close room: %w", err)
	}
	return room, nil
}

func (s *RoomStore) MarkRead(ctx context.Context, key string, reader models.SenderType, at time.Time) (*models.ChatRoom, int64, error) {
	var (
		room    *models.ChatRoom
		flipped int64
	)

	err := db.WithTx(ctx, s.pool, "mark_room_read", func(tx pgx.Tx) error {
		roomID, err := lockActiveRoom(ctx, tx, key)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE chat_messages
			SET status = 'read', read_at = $2
			WHERE room_id = $1 AND sender_type <> $3 AND status = 'sent'`,
			roomID, at, reader)
		if err != nil {
			return fmt.Errorf("mark messages read: %w", err)
		}
		flipped = tag.RowsAffected()

		room, err = scanRoom(tx.QueryRow(ctx, `
			UPDATE chat_rooms
			SET unread_count = 0
			WHERE id = $1
			RETURNING `+roomColumns, roomID))
		if err != nil {
			return fmt.Errorf("reset unread count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return room, flipped, nil
}

// lockActiveRoom takes a row lock on the active room with key, serializing
// every writer of that room until the surrounding transaction ends.
func lockActiveRoom(ctx context.Context, tx pgx.Tx, key string) (int64, error) {
	var roomID int64
	err := tx.QueryRow(ctx, `
		SELECT id
		FROM chat_rooms
		WHERE room_key = $1 AND status = 'active'
		FOR UPDATE`, key).Scan(&roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.NotFound("room %s not found or closed", key)
		}
		return 0, fmt.Errorf("lock room: %w", err)
	}
	return roomID, nil
}
