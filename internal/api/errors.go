package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echodesk/internal/apperr"
	"go.uber.org/zap"
)

// statusFor maps an error kind to the HTTP status handlers answer with.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindDuplicateRoom:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeError answers with the client-safe message for err. Persistence
// failures are logged with their cause first.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	}
	msg, details := apperr.Public(err)
	body := gin.H{"error": msg}
	if details != "" {
		body["details"] = details
	}
	c.JSON(status, body)
}
