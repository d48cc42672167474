package chat

import (
	"context"
	"errors"
	"strconv"

	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/metrics"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// HistoryLimit is how many messages a join replays.
	HistoryLimit = 50
	// MaxHistoryLimit caps paged history requests.
	MaxHistoryLimit = 100

	// resolveAttempts bounds the re-read loop after a lost insert race.
	resolveAttempts = 3
)

// RoomManager locates and creates rooms and manages who is subscribed to
// them.
type RoomManager struct {
	*base
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	admins   repository.AdminRepository
	logger   *zap.Logger

	// resolving collapses concurrent resolves for one user inside this
	// process. The unique index still guards against other processes.
	resolving singleflight.Group
}

// ResolveOrCreate returns the user's active room, creating one if there is
// none. Concurrent callers for the same user observe the same room.
func (m *RoomManager) ResolveOrCreate(ctx context.Context, userID int64) (*models.ChatRoom, error) {
	if userID <= 0 {
		return nil, apperr.InvalidInput("userId is required")
	}

	ch := m.resolving.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		return m.resolve(ctx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, apperr.FromStore("resolve room", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		room := *res.Val.(*models.ChatRoom)
		return &room, nil
	}
}

func (m *RoomManager) resolve(ctx context.Context, userID int64) (*models.ChatRoom, error) {
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		qctx, cancel := m.withTimeout(ctx)
		room, err := m.rooms.GetActiveByUser(qctx, userID)
		cancel()
		if err != nil {
			return nil, apperr.FromStore("get active room", err)
		}
		if room != nil {
			return room, nil
		}

		room, err = m.create(ctx, userID)
		if errors.Is(err, apperr.ErrDuplicateRoom) {
			m.logger.Debug("lost room insert race, re-reading", zap.Int64("user_id", userID))
			continue
		}
		if err != nil {
			return nil, err
		}
		return room, nil
	}
	return nil, apperr.Persistence("resolve room", errors.New("room kept changing under concurrent inserts"))
}

func (m *RoomManager) create(ctx context.Context, userID int64) (*models.ChatRoom, error) {
	qctx, cancel := m.withTimeout(ctx)
	defer cancel()

	adminID, err := m.admins.PickAvailable(qctx)
	if err != nil {
		return nil, apperr.FromStore("pick admin", err)
	}

	room, err := m.rooms.Create(qctx, RoomKey(userID), userID, adminID)
	if err != nil {
		return nil, apperr.FromStore("create room", err)
	}

	metrics.RoomsCreated.Inc()
	m.logger.Info("room created",
		zap.String("room", room.Key),
		zap.Int64("user_id", userID),
		zap.Bool("assigned", adminID != nil),
	)

	// Admins connected before the room existed join it now.
	admins := m.conns.ByRole(models.RoleAdmin)
	for _, a := range admins {
		a.Join(room.Key)
	}
	hub.Broadcast(admins, hub.UpdateChatRooms{})
	return room, nil
}

// JoinOwnRoom resolves a member's or owner's room, subscribes c to it and
// replies with chatInitialized.
func (m *RoomManager) JoinOwnRoom(ctx context.Context, c *hub.Client) (*models.ChatRoom, error) {
	room, err := m.ResolveOrCreate(ctx, c.Identity().UserID)
	if err != nil {
		return nil, err
	}

	// Submit broadcasts under the same lock, so every message lands either
	// in the replayed history or in c's outbox after the reply.
	unlock := m.locks.lock(room.Key)
	defer unlock()

	history, err := m.History(ctx, room.Key, 0, HistoryLimit)
	if err != nil {
		return nil, err
	}
	c.Join(room.Key)
	c.Send(hub.ChatInitialized{Room: room, Messages: history})
	return room, nil
}

// JoinAsAdmin subscribes an admin connection to one active room and
// replays its history.
func (m *RoomManager) JoinAsAdmin(ctx context.Context, c *hub.Client, key string) (*models.ChatRoom, error) {
	if key == "" {
		return nil, apperr.InvalidInput("roomId is required")
	}

	unlock := m.locks.lock(key)
	defer unlock()

	qctx, cancel := m.withTimeout(ctx)
	room, err := m.rooms.GetActiveByKey(qctx, key)
	cancel()
	if err != nil {
		return nil, apperr.FromStore("get room", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room %s not found or closed", key)
	}

	history, err := m.History(ctx, key, 0, HistoryLimit)
	if err != nil {
		return nil, err
	}
	c.Join(key)
	c.Send(hub.RoomJoined{RoomID: key})
	c.Send(hub.ChatHistory{RoomID: key, Messages: history})
	return room, nil
}

// Leave unsubscribes c from a room. Leaving a room c is not in is a no-op
// that still acknowledges.
func (m *RoomManager) Leave(c *hub.Client, key string) {
	c.Leave(key)
	c.Send(hub.RoomLeft{RoomID: key})
}

// JoinAllActiveRooms subscribes an admin connection to every active room
// and sends it the room list. Only that admin receives the list.
func (m *RoomManager) JoinAllActiveRooms(ctx context.Context, c *hub.Client) ([]models.RoomSummary, error) {
	qctx, cancel := m.withTimeout(ctx)
	summaries, err := m.rooms.ListSummaries(qctx)
	cancel()
	if err != nil {
		return nil, apperr.FromStore("list rooms", err)
	}

	for _, s := range summaries {
		c.Join(s.Key)
	}
	c.Send(hub.ChatRooms(summaries))
	return summaries, nil
}

// Summaries is the admin room list without subscribing anyone.
func (m *RoomManager) Summaries(ctx context.Context) ([]models.RoomSummary, error) {
	qctx, cancel := m.withTimeout(ctx)
	defer cancel()
	summaries, err := m.rooms.ListSummaries(qctx)
	if err != nil {
		return nil, apperr.FromStore("list rooms", err)
	}
	return summaries, nil
}

// Close moves the active room to closed, tells its subscribers, and drops
// their subscriptions. Closing is terminal; the user's next resolve opens
// a new room under the same key.
func (m *RoomManager) Close(ctx context.Context, key string, by hub.Identity) (*models.ChatRoom, error) {
	if key == "" {
		return nil, apperr.InvalidInput("roomId is required")
	}
	if by.Role != models.RoleAdmin && key != RoomKey(by.UserID) {
		return nil, apperr.Forbidden("cannot close room %s", key)
	}

	unlock := m.locks.lock(key)
	defer unlock()

	qctx, cancel := m.withTimeout(ctx)
	room, err := m.rooms.Close(qctx, key)
	cancel()
	if err != nil {
		return nil, apperr.FromStore("close room", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room %s not found or closed", key)
	}

	subs := m.conns.RoomSubscribers(key)
	hub.Broadcast(subs, hub.ChatRoomClosed{RoomID: key})
	for _, c := range subs {
		c.Leave(key)
	}
	m.refreshAdmins()

	m.logger.Info("room closed", zap.String("room", key), zap.String("by", by.String()))
	return room, nil
}

// Status reports the newest room under key, closed or not.
func (m *RoomManager) Status(ctx context.Context, key string) (*models.ChatRoom, error) {
	if key == "" {
		return nil, apperr.InvalidInput("roomId is required")
	}
	qctx, cancel := m.withTimeout(ctx)
	defer cancel()

	room, err := m.rooms.GetLatestByKey(qctx, key)
	if err != nil {
		return nil, apperr.FromStore("get room", err)
	}
	if room == nil {
		return nil, apperr.NotFound("room %s not found", key)
	}
	return room, nil
}

// History returns up to limit messages of the newest room under key older
// than before (0 for the latest), oldest first.
func (m *RoomManager) History(ctx context.Context, key string, before int64, limit int) ([]models.ChatMessage, error) {
	if limit < 1 {
		limit = HistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	qctx, cancel := m.withTimeout(ctx)
	defer cancel()

	msgs, err := m.messages.ListByRoom(qctx, key, before, limit)
	if err != nil {
		return nil, apperr.FromStore("list messages", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
