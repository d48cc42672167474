// Package session binds one websocket connection to one identity and runs
// its inbound events through the chat and notification services.
package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/chat"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/metrics"
	"github.com/lalith-99/echodesk/internal/middleware"
	"github.com/lalith-99/echodesk/internal/notify"
	"go.uber.org/zap"
)

type Handler struct {
	registry   *hub.Registry
	chat       *chat.Service
	notify     *notify.Service
	outboxSize int
	logger     *zap.Logger
}

func NewHandler(registry *hub.Registry, chatSvc *chat.Service, notifySvc *notify.Service, outboxSize int, logger *zap.Logger) *Handler {
	return &Handler{
		registry:   registry,
		chat:       chatSvc,
		notify:     notifySvc,
		outboxSize: outboxSize,
		logger:     logger.Named("session"),
	}
}

// ServeWS handles GET /v1/ws. It runs behind AuthMiddleware, so the
// identity is already verified when it gets here.
func (h *Handler) ServeWS(c *gin.Context) {
	id := hub.Identity{Role: middleware.GetRole(c), UserID: middleware.GetUserID(c)}
	hs, err := ParseHandshake(c.Request.URL.Query(), id)
	if err != nil {
		msg, _ := apperr.Public(err)
		status := http.StatusForbidden
		if apperr.KindOf(err) == apperr.KindInvalidInput {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	conn, err := hub.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := hub.NewClient(hs.Identity, h.outboxSize)
	client.Attach(conn)
	go client.WritePump()

	// The connection outlives the HTTP handler's request, and its queries
	// are cancelled when the connection closes.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()
	go func() {
		<-client.Done()
		cancel()
	}()

	h.Serve(ctx, client, hs)
}

// Serve runs a connection from registration to disconnect. It blocks
// until the read pump returns.
func (h *Handler) Serve(ctx context.Context, c *hub.Client, hs Handshake) {
	h.Connect(ctx, c, hs)

	err := c.ReadPump(ctx, func(ctx context.Context, frame []byte) {
		h.Dispatch(ctx, c, frame)
	})
	if err != nil {
		h.logger.Debug("connection read ended", zap.String("conn", c.ID()), zap.Error(err))
	}

	h.Disconnect(c)
}

// Connect registers c and runs the on-connect paths: admins join every
// active room, members and owners may get a welcome, and a chatRoomId in
// the handshake joins that room.
func (h *Handler) Connect(ctx context.Context, c *hub.Client, hs Handshake) {
	id := c.Identity()
	displaced := h.registry.Register(c)
	h.logger.Info("connected",
		zap.String("identity", id.String()),
		zap.String("conn", c.ID()),
		zap.Bool("replaced", displaced != nil),
	)

	if c.IsAdmin() {
		if _, err := h.chat.Rooms.JoinAllActiveRooms(ctx, c); err != nil {
			h.reportError(c, err)
		}
	} else if displaced == nil {
		if _, err := h.notify.Welcome(ctx, id); err != nil {
			h.logger.Warn("welcome notification failed", zap.String("identity", id.String()), zap.Error(err))
		}
	}

	if hs.ChatRoomID != "" {
		var err error
		if c.IsAdmin() {
			_, err = h.chat.Rooms.JoinAsAdmin(ctx, c, hs.ChatRoomID)
		} else if hs.ChatRoomID == chat.RoomKey(id.UserID) {
			_, err = h.chat.Rooms.JoinOwnRoom(ctx, c)
		} else {
			err = apperr.Forbidden("cannot join room %s", hs.ChatRoomID)
		}
		if err != nil {
			h.reportError(c, err)
		}
	}
}

// Disconnect drops c from the registry if it still owns its slot.
func (h *Handler) Disconnect(c *hub.Client) {
	c.Close()
	if h.registry.Unregister(c) {
		h.logger.Info("disconnected",
			zap.String("identity", c.Identity().String()),
			zap.String("conn", c.ID()),
		)
	}
}

// Dispatch handles one inbound frame. Every error is reported to c only
// and never ends the connection.
func (h *Handler) Dispatch(ctx context.Context, c *hub.Client, frame []byte) {
	name, evt, err := hub.Decode(frame)
	if err == nil {
		err = h.handle(ctx, c, evt)
	}

	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		if name == hub.EvMessage || name == hub.EvSendMessage {
			msg, _ := apperr.Public(err)
			var roomID string
			if send, ok := evt.(*hub.SendMessage); ok {
				roomID = send.RoomID
			}
			c.Send(hub.MessageError{RoomID: roomID, Message: msg})
		} else {
			h.reportError(c, err)
		}
	}
	metrics.InboundEvents.WithLabelValues(eventLabel(name), outcome).Inc()
}

func (h *Handler) reportError(c *hub.Client, err error) {
	if apperr.KindOf(err) == apperr.KindPersistence {
		h.logger.Error("event failed",
			zap.String("identity", c.Identity().String()),
			zap.Error(err),
		)
	}
	msg, details := apperr.Public(err)
	c.Send(hub.ErrorEvent{Message: msg, Details: details})
}

func (h *Handler) handle(ctx context.Context, c *hub.Client, evt hub.Inbound) error {
	id := c.Identity()

	switch e := evt.(type) {
	case *hub.JoinRoom:
		if c.IsAdmin() {
			key := e.RoomID
			if key == "" && e.UserID > 0 {
				key = chat.RoomKey(e.UserID)
			}
			_, err := h.chat.Rooms.JoinAsAdmin(ctx, c, key)
			return err
		}
		if e.UserID != 0 && e.UserID != id.UserID {
			return apperr.Forbidden("cannot join room of user %d", e.UserID)
		}
		if e.RoomID != "" && e.RoomID != chat.RoomKey(id.UserID) {
			return apperr.Forbidden("cannot join room %s", e.RoomID)
		}
		_, err := h.chat.Rooms.JoinOwnRoom(ctx, c)
		return err

	case *hub.LeaveRoom:
		h.chat.Rooms.Leave(c, e.RoomID)
		return nil

	case *hub.SendMessage:
		if c.IsAdmin() && e.SenderID != 0 && e.SenderID != id.UserID {
			return apperr.Forbidden("senderId does not match connection")
		}
		msg, err := h.chat.Messages.Submit(ctx, e.RoomID, id, e.Message)
		if err != nil {
			return err
		}
		c.Send(hub.MessageSent{ID: msg.ID, RoomID: msg.RoomKey})
		return nil

	case *hub.MarkRoomRead:
		_, err := h.chat.Reads.MarkRoomRead(ctx, e.RoomID, id)
		return err

	case *hub.GetRoomStatus:
		room, err := h.chat.Rooms.Status(ctx, e.RoomID)
		if err != nil {
			return err
		}
		if !c.IsAdmin() && room.UserID != id.UserID {
			return apperr.NotFound("room %s not found", e.RoomID)
		}
		c.Send(hub.ChatRoomStatus{RoomID: room.Key, Status: room.Status, UnreadCount: room.UnreadCount})
		return nil

	case *hub.CloseRoom:
		_, err := h.chat.Rooms.Close(ctx, e.RoomID, id)
		return err

	case *hub.GetNotifications:
		return h.sendNotifications(ctx, c, e.Limit)

	case *hub.MarkNotificationRead:
		n, err := h.notify.MarkRead(ctx, id, notify.Scope{Kind: notify.ScopeOne, ID: e.NotificationID})
		return h.cleared(ctx, c, n, err, "notification marked as read")

	case *hub.MarkAllNotificationsRead:
		n, err := h.notify.MarkRead(ctx, id, notify.Scope{Kind: notify.ScopeAll})
		return h.cleared(ctx, c, n, err, "all notifications marked as read")

	case *hub.MarkTypeRead:
		n, err := h.notify.MarkRead(ctx, id, notify.Scope{Kind: notify.ScopeType, Type: e.Type, IDs: e.NotificationIDs})
		return h.cleared(ctx, c, n, err, fmt.Sprintf("%s notifications marked as read", e.Type))

	case *hub.DeleteNotifications:
		n, err := h.notify.Delete(ctx, id, e.NotificationIDs)
		return h.cleared(ctx, c, n, err, "notifications deleted")
	}

	return apperr.InvalidInput("unsupported event")
}

// cleared acknowledges a notification mutation and sends the fresh list.
func (h *Handler) cleared(ctx context.Context, c *hub.Client, n int64, err error, msg string) error {
	if err != nil {
		return err
	}
	c.Send(hub.NotificationsCleared{Success: true, Message: fmt.Sprintf("%s (%d)", msg, n)})
	return h.sendNotifications(ctx, c, 0)
}

func (h *Handler) sendNotifications(ctx context.Context, c *hub.Client, limit int) error {
	list, err := h.notify.List(ctx, c.Identity(), limit)
	if err != nil {
		return err
	}
	c.Send(hub.Notifications(list))
	return nil
}

var knownEvents = map[string]bool{
	hub.EvJoinRoom:            true,
	hub.EvLeaveRoom:           true,
	hub.EvMessage:             true,
	hub.EvSendMessage:         true,
	hub.EvMarkAsRead:          true,
	hub.EvMarkMessagesAsRead:  true,
	hub.EvGetChatRoomStatus:   true,
	hub.EvCloseChatRoom:       true,
	hub.EvGetNotifications:    true,
	hub.EvMarkAllAsRead:       true,
	hub.EvMarkTypeAsRead:      true,
	hub.EvDeleteNotifications: true,
}

// eventLabel keeps client-chosen names out of metric labels.
func eventLabel(name string) string {
	if knownEvents[name] {
		return name
	}
	return "unknown"
}
