package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/notify"
	"go.uber.org/zap"
)

// NotificationHandler is the HTTP entry point for sending notifications
// from back-office tools. It goes through the same service as everything
// else, so rows are persisted and connected users get a live push.
type NotificationHandler struct {
	svc    *notify.Service
	logger *zap.Logger
}

func NewNotificationHandler(svc *notify.Service, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

type sendRequest struct {
	UserID   int64                   `json:"userId" binding:"required,min=1"`
	UserType models.Role             `json:"userType" binding:"required"`
	Type     models.NotificationType `json:"type" binding:"required"`
	Title    string                  `json:"title" binding:"required"`
	Content  string                  `json:"content"`
}

// Send handles POST /v1/notifications
func (h *NotificationHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.svc.SendToUser(c.Request.Context(),
		models.Recipient{UserID: req.UserID, Role: req.UserType},
		notify.Message{Type: req.Type, Title: req.Title, Content: req.Content},
	)
	if err != nil {
		writeError(c, h.logger, "send notification", err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

type groupRequest struct {
	Roles   []models.Role           `json:"roles" binding:"required,min=1"`
	Type    models.NotificationType `json:"type" binding:"required"`
	Title   string                  `json:"title" binding:"required"`
	Content string                  `json:"content"`
}

// SendGroup handles POST /v1/notifications/group
//
// The batch is all or nothing. A failure answers 500 with
// "0 of N persisted" in details.
func (h *NotificationHandler) SendGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.svc.SendToRoles(c.Request.Context(), req.Roles,
		notify.Message{Type: req.Type, Title: req.Title, Content: req.Content},
	)
	if err != nil {
		writeError(c, h.logger, "send group notification", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"count": len(created)})
}
