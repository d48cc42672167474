package chat

import (
	"context"

	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/repository"
	"go.uber.org/zap"
)

// ReadTracker moves messages from sent to read and tells the room.
type ReadTracker struct {
	*base
	rooms  repository.RoomRepository
	logger *zap.Logger
}

// MarkRoomRead flips every sent message in the room written by the other
// side to read and zeroes the unread count. Re-running it on a read room
// changes nothing but still emits messagesRead and updateChatRooms.
func (t *ReadTracker) MarkRoomRead(ctx context.Context, key string, reader hub.Identity) (*models.ChatRoom, error) {
	if key == "" {
		return nil, apperr.InvalidInput("roomId is required")
	}
	if !reader.Role.Valid() || reader.UserID <= 0 {
		return nil, apperr.InvalidInput("reader identity is required")
	}
	if reader.Role != models.RoleAdmin && key != RoomKey(reader.UserID) {
		return nil, apperr.Forbidden("cannot read room %s", key)
	}

	unlock := t.locks.lock(key)
	defer unlock()

	at := t.now()
	qctx, cancel := t.withTimeout(ctx)
	room, flipped, err := t.rooms.MarkRead(qctx, key, reader.Role.SenderType(), at)
	cancel()
	if err != nil {
		if apperr.KindOf(err) == apperr.KindPersistence {
			t.logger.Error("mark room read failed", zap.String("room", key), zap.Error(err))
		}
		return nil, apperr.FromStore("mark room read", err)
	}

	hub.Broadcast(t.conns.RoomSubscribers(key), hub.MessagesRead{RoomID: key, ReadAt: at})
	t.refreshAdmins()

	t.logger.Debug("room read",
		zap.String("room", key),
		zap.String("reader", reader.String()),
		zap.Int64("flipped", flipped),
	)
	return room, nil
}
