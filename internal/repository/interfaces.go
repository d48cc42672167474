package repository

import (
	"context"
	"time"

	"github.com/lalith-99/echodesk/internal/models"
)

// Every method takes a context because every implementation does I/O.
// Callers bound it with the configured query timeout and derive it from
// the connection's context, so a dropped socket cancels its queries.
//
// Single-row lookups return nil, nil when the row does not exist.
// Transactional methods report domain outcomes through apperr kinds
// (NotFound, DuplicateRoom) and wrap driver failures as Persistence.

// RoomRepository manages support rooms.
type RoomRepository interface {
	// GetActiveByUser returns the user's active room, if any.
	GetActiveByUser(ctx context.Context, userID int64) (*models.ChatRoom, error)

	// GetActiveByKey returns the active room with this key, if any.
	GetActiveByKey(ctx context.Context, key string) (*models.ChatRoom, error)

	// GetLatestByKey returns the newest room with this key regardless of
	// status. Used for status queries on rooms that may have been closed.
	GetLatestByKey(ctx context.Context, key string) (*models.ChatRoom, error)

	// Create inserts an active room. A concurrent insert for the same user
	// fails with an apperr DuplicateRoom error.
	Create(ctx context.Context, key string, userID int64, adminID *int64) (*models.ChatRoom, error)

	// ListSummaries returns every active room with its participant names,
	// most recent activity first.
	ListSummaries(ctx context.Context) ([]models.RoomSummary, error)

	// Close moves the active room with this key to closed and returns it.
	// Returns nil, nil if there is no active room with the key.
	Close(ctx context.Context, key string) (*models.ChatRoom, error)

	// MarkRead flips every sent message in the active room whose sender
	// type differs from reader to read, resets unread_count, and returns
	// the updated room with the number of flipped messages. Runs in one
	// transaction. NotFound if no active room has the key.
	MarkRead(ctx context.Context, key string, reader models.SenderType, at time.Time) (*models.ChatRoom, int64, error)
}

// MessageRepository handles chat message persistence.
type MessageRepository interface {
	// Submit inserts a message into the active room with this key and
	// updates the room summary (last message, time, unread count, and the
	// admin assignment when an admin replies to an unassigned room), all
	// in one transaction. NotFound if no active room has the key; nothing
	// is written in that case.
	Submit(ctx context.Context, key string, senderID int64, senderType models.SenderType, body string) (*models.ChatMessage, *models.ChatRoom, error)

	// ListByRoom returns the newest room's messages with this key, newest
	// first. before=0 starts from the latest message.
	ListByRoom(ctx context.Context, key string, before int64, limit int) ([]models.ChatMessage, error)
}

// NotificationRepository persists user notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n models.NewNotification) (*models.Notification, error)

	// CreateBatch inserts every row in one transaction: all or nothing.
	CreateBatch(ctx context.Context, batch []models.NewNotification) ([]models.Notification, error)

	// ListByUser returns the user's notifications, newest first.
	ListByUser(ctx context.Context, userID int64, role models.Role, limit int) ([]models.Notification, error)

	MarkRead(ctx context.Context, userID int64, role models.Role, id int64) (int64, error)
	MarkAllRead(ctx context.Context, userID int64, role models.Role) (int64, error)

	// MarkTypeRead marks unread notifications of one type. A non-empty ids
	// narrows it further. It is a no-op when nothing matching is unread.
	MarkTypeRead(ctx context.Context, userID int64, role models.Role, typ models.NotificationType, ids []int64) (int64, error)

	// Delete removes the listed notifications, or every read notification
	// of the user when ids is empty.
	Delete(ctx context.Context, userID int64, role models.Role, ids []int64) (int64, error)
}

// UserRepository is the read side of the external customer table plus
// the last_login column the welcome throttle owns.
type UserRepository interface {
	// ActiveRecipients resolves every active account holding one of roles.
	ActiveRecipients(ctx context.Context, roles []models.Role) ([]models.Recipient, error)

	// ClaimWelcome atomically sets last_login to now when it is null or
	// older than window, and reports whether it did. Two concurrent
	// connects can never both claim.
	ClaimWelcome(ctx context.Context, userID int64, now time.Time, window time.Duration) (bool, error)
}

// AdminRepository reads the external admins table.
type AdminRepository interface {
	// PickAvailable returns the most recently authenticated admin whose
	// availability flag is set, or nil when nobody is available.
	PickAvailable(ctx context.Context) (*int64, error)

	Exists(ctx context.Context, adminID int64) (bool, error)
}
