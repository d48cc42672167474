package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/echodesk/internal/db"
	"github.com/lalith-99/echodesk/internal/models"
)

const messageColumns = `m.id, m.room_id, r.room_key, m.sender_id, m.sender_type, m.body, m.status, m.read_at, m.created_at`

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func scanMessage(row scanner) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.RoomKey,
		&msg.SenderID,
		&msg.SenderType,
		&msg.Body,
		&msg.Status,
		&msg.ReadAt,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Submit(ctx context.Context, key string, senderID int64, senderType models.SenderType, body string) (*models.ChatMessage, *models.ChatRoom, error) {
	var (
		msg  *models.ChatMessage
		room *models.ChatRoom
	)

	err := db.WithTx(ctx, s.pool, "submit_message", func(tx pgx.Tx) error {
		roomID, err := lockActiveRoom(ctx, tx, key)
		if err != nil {
			return err
		}

		// The CTE joins the new row back to its room so the returned
		// message carries the public key like every other read.
		msg, err = scanMessage(tx.QueryRow(ctx, `
			WITH m AS (
				INSERT INTO chat_messages (room_id, sender_id, sender_type, body, status, created_at)
				VALUES ($1, $2, $3, $4, 'sent', now())
				RETURNING *
			)
			SELECT `+messageColumns+`
			FROM m JOIN chat_rooms r ON r.id = m.room_id`,
			roomID, senderID, senderType, body))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		// First admin to reply claims an unassigned room.
		var claim *int64
		if senderType == models.SenderAdmin {
			claim = &senderID
		}
		room, err = scanRoom(tx.QueryRow(ctx, `
			UPDATE chat_rooms
			SET last_message = $2,
			    last_message_time = $3,
			    unread_count = unread_count + 1,
			    admin_id = COALESCE(admin_id, $4)
			WHERE id = $1
			RETURNING `+roomColumns,
			roomID, body, msg.CreatedAt, claim))
		if err != nil {
			return fmt.Errorf("update room summary: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return msg, room, nil
}

func (s *MessageStore) ListByRoom(ctx context.Context, key string, before int64, limit int) ([]models.ChatMessage, error) {
	// Cursor pagination, same as the HTTP surface: before=0 is the first
	// page. Only the newest room with the key is read, so history never
	// leaks across a close/reopen.
	var query string
	var args []any

	latest := `(SELECT id FROM chat_rooms WHERE room_key = $1 ORDER BY id DESC LIMIT 1)`
	if before > 0 {
		query = `
			SELECT ` + messageColumns + `
			FROM chat_messages m JOIN chat_rooms r ON r.id = m.room_id
			WHERE m.room_id = ` + latest + ` AND m.id < $2
			ORDER BY m.id DESC
			LIMIT $3`
		args = []any{key, before, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM chat_messages m JOIN chat_rooms r ON r.id = m.room_id
			WHERE m.room_id = ` + latest + `
			ORDER BY m.id DESC
			LIMIT $2`
		args = []any{key, limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
