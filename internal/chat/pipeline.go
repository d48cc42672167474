package chat

import (
	"context"
	"strings"

	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/metrics"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/repository"
	"go.uber.org/zap"
)

// MaxMessageLength is the longest body the pipeline accepts, in bytes.
const MaxMessageLength = 4000

// Pipeline validates, persists and broadcasts chat messages.
type Pipeline struct {
	*base
	messages repository.MessageRepository
	admins   repository.AdminRepository
	limiter  Limiter
	logger   *zap.Logger
}

// Submit stores body in the active room under key and broadcasts it to
// the room's subscribers. The sender type comes from the sender's role,
// never from the client.
//
// Errors go to the sender only; nothing is broadcast unless the message
// committed.
func (p *Pipeline) Submit(ctx context.Context, key string, sender hub.Identity, body string) (*models.ChatMessage, error) {
	body = strings.TrimSpace(body)
	switch {
	case key == "":
		return nil, apperr.InvalidInput("roomId is required")
	case body == "":
		return nil, apperr.InvalidInput("message is required")
	case sender.UserID <= 0 || !sender.Role.Valid():
		return nil, apperr.InvalidInput("sender identity is required")
	case len(body) > MaxMessageLength:
		return nil, apperr.InvalidInput("message exceeds %d bytes", MaxMessageLength)
	}

	senderType := sender.Role.SenderType()
	if senderType == models.SenderMember && key != RoomKey(sender.UserID) {
		return nil, apperr.Forbidden("cannot post to room %s", key)
	}

	if err := p.allow(ctx, sender); err != nil {
		return nil, err
	}

	if senderType == models.SenderAdmin {
		qctx, cancel := p.withTimeout(ctx)
		ok, err := p.admins.Exists(qctx, sender.UserID)
		cancel()
		if err != nil {
			return nil, apperr.FromStore("check admin", err)
		}
		if !ok {
			return nil, apperr.Forbidden("unknown admin %d", sender.UserID)
		}
	}

	// Commit and enqueue under the room lock so every subscriber sees
	// this room's messages in commit order.
	unlock := p.locks.lock(key)
	defer unlock()

	qctx, cancel := p.withTimeout(ctx)
	msg, room, err := p.messages.Submit(qctx, key, sender.UserID, senderType, body)
	cancel()
	if err != nil {
		if apperr.KindOf(err) == apperr.KindPersistence {
			p.logger.Error("submit message failed",
				zap.String("room", key),
				zap.String("sender", sender.String()),
				zap.Error(err),
			)
		}
		return nil, apperr.FromStore("submit message", err)
	}
	metrics.MessagesSubmitted.WithLabelValues(string(senderType)).Inc()

	delivered := hub.Broadcast(p.conns.RoomSubscribers(key), hub.NewMessage{ChatMessage: *msg})
	if senderType == models.SenderAdmin {
		p.refreshAdmins()
	}

	p.logger.Debug("message committed",
		zap.String("room", key),
		zap.Int64("id", msg.ID),
		zap.Int("unread", room.UnreadCount),
		zap.Int("delivered", delivered),
	)
	return msg, nil
}

// allow applies the per-sender rate limit. A limiter outage lets the
// message through.
func (p *Pipeline) allow(ctx context.Context, sender hub.Identity) error {
	if p.limiter == nil {
		return nil
	}
	ok, err := p.limiter.Allow(ctx, "msg:"+sender.String())
	if err != nil {
		p.logger.Warn("rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		return apperr.RateLimited("too many messages, slow down")
	}
	return nil
}
