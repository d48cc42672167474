package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echodesk/internal/chat"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/middleware"
	"go.uber.org/zap"
)

// RoomHandler serves the admin dashboard's non-realtime needs: the room
// list, paged history, replies and closing. Replies and closes go through
// the chat service, so connected subscribers see them live.
type RoomHandler struct {
	chat   *chat.Service
	logger *zap.Logger
}

func NewRoomHandler(svc *chat.Service, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{chat: svc, logger: logger}
}

func caller(c *gin.Context) hub.Identity {
	return hub.Identity{Role: middleware.GetRole(c), UserID: middleware.GetUserID(c)}
}

// List handles GET /v1/admin/rooms
func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.chat.Rooms.Summaries(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "list rooms", err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// Messages handles GET /v1/admin/rooms/:key/messages?before=123&limit=50
//
// Cursor-based pagination:
//   - "before" = message ID. "Give me messages older than this." 0 = start from latest.
//   - "limit"  = how many to return. Default 50, capped at 100.
//
// Messages come back oldest first; the first id is the next page's cursor.
func (h *RoomHandler) Messages(c *gin.Context) {
	var (
		before int64
		err    error
	)
	if b := c.Query("before"); b != "" {
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil || before < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' parameter"})
			return
		}
	}

	limit := chat.HistoryLimit
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
	}

	msgs, err := h.chat.Rooms.History(c.Request.Context(), c.Param("key"), before, limit)
	if err != nil {
		writeError(c, h.logger, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

type replyRequest struct {
	Message string `json:"message" binding:"required"`
}

// Reply handles POST /v1/admin/rooms/:key/messages
func (h *RoomHandler) Reply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.Messages.Submit(c.Request.Context(), c.Param("key"), caller(c), req.Message)
	if err != nil {
		writeError(c, h.logger, "reply", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Close handles POST /v1/admin/rooms/:key/close
func (h *RoomHandler) Close(c *gin.Context) {
	room, err := h.chat.Rooms.Close(c.Request.Context(), c.Param("key"), caller(c))
	if err != nil {
		writeError(c, h.logger, "close room", err)
		return
	}
	c.JSON(http.StatusOK, room)
}
