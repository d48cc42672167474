// Package notify persists notifications and pushes them to whoever is
// connected. Persisting always comes first; a recipient without a live
// connection reads the row later.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/metrics"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200

	WelcomeTitle   = "Welcome back"
	WelcomeContent = "Our support team is online. Open the chat if you need anything."
)

// Connections is the lookup side of the connection registry.
type Connections interface {
	Lookup(role models.Role, userID int64) *hub.Client
}

type Options struct {
	Notifications repository.NotificationRepository
	Users         repository.UserRepository
	Conns         Connections

	// WelcomeWindow is how long after one welcome the next is suppressed.
	WelcomeWindow time.Duration
	QueryTimeout  time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

type Service struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	conns         Connections
	welcomeWindow time.Duration
	timeout       time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.WelcomeWindow <= 0 {
		opts.WelcomeWindow = 30 * time.Minute
	}
	return &Service{
		notifications: opts.Notifications,
		users:         opts.Users,
		conns:         opts.Conns,
		welcomeWindow: opts.WelcomeWindow,
		timeout:       opts.QueryTimeout,
		now:           opts.Now,
		logger:        opts.Logger.Named("notify"),
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Message is the content of a notification, whoever it goes to.
type Message struct {
	Type    models.NotificationType
	Title   string
	Content string
}

func (m Message) validate() error {
	switch {
	case !m.Type.Valid():
		return apperr.InvalidInput("unknown notification type %q", m.Type)
	case strings.TrimSpace(m.Title) == "":
		return apperr.InvalidInput("title is required")
	}
	return nil
}

func (m Message) to(r models.Recipient) models.NewNotification {
	return models.NewNotification{
		UserID:   r.UserID,
		UserRole: r.Role,
		Type:     m.Type,
		Title:    strings.TrimSpace(m.Title),
		Content:  m.Content,
	}
}

// SendToUser persists one notification and pushes it if the recipient is
// connected.
func (s *Service) SendToUser(ctx context.Context, to models.Recipient, msg Message) (*models.Notification, error) {
	if to.UserID <= 0 || !to.Role.Valid() {
		return nil, apperr.InvalidInput("recipient is required")
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}

	qctx, cancel := s.withTimeout(ctx)
	n, err := s.notifications.Create(qctx, msg.to(to))
	cancel()
	if err != nil {
		s.logger.Error("create notification failed",
			zap.Int64("user_id", to.UserID),
			zap.String("role", string(to.Role)),
			zap.Error(err),
		)
		return nil, apperr.FromStore("create notification", err)
	}
	metrics.NotificationsPersisted.WithLabelValues(string(n.Type)).Inc()

	s.push(*n)
	return n, nil
}

// SendToRoles fans msg out to every active account holding one of roles.
// The rows are inserted in one transaction: either every target gets a
// row or none does, in which case the error is a *apperr.BatchError.
// Live pushes only happen after the commit.
func (s *Service) SendToRoles(ctx context.Context, roles []models.Role, msg Message) ([]models.Notification, error) {
	if len(roles) == 0 {
		return nil, apperr.InvalidInput("at least one role is required")
	}
	for _, r := range roles {
		if !r.Valid() {
			return nil, apperr.InvalidInput("unknown role %q", r)
		}
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}

	qctx, cancel := s.withTimeout(ctx)
	targets, err := s.users.ActiveRecipients(qctx, roles)
	cancel()
	if err != nil {
		return nil, apperr.FromStore("resolve recipients", err)
	}
	if len(targets) == 0 {
		return []models.Notification{}, nil
	}

	batch := make([]models.NewNotification, 0, len(targets))
	for _, t := range targets {
		batch = append(batch, msg.to(t))
	}

	qctx, cancel = s.withTimeout(ctx)
	created, err := s.notifications.CreateBatch(qctx, batch)
	cancel()
	if err != nil {
		s.logger.Error("notification batch failed",
			zap.Int("targets", len(batch)),
			zap.Error(err),
		)
		return nil, &apperr.BatchError{Targets: len(batch), Inserted: 0, Err: err}
	}
	metrics.NotificationsPersisted.WithLabelValues(string(msg.Type)).Add(float64(len(created)))

	for _, n := range created {
		s.push(n)
	}
	s.logger.Info("notification fan-out",
		zap.Strings("roles", rolesToStrings(roles)),
		zap.Int("persisted", len(created)),
	)
	return created, nil
}

func (s *Service) push(n models.Notification) {
	c := s.conns.Lookup(n.UserRole, n.UserID)
	if c == nil {
		return
	}
	c.Send(hub.NewNotification{Notification: n, Channel: c.Identity().NotificationChannel()})
}

// List returns the caller's notifications, newest first.
func (s *Service) List(ctx context.Context, who hub.Identity, limit int) ([]models.Notification, error) {
	if limit < 1 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	list, err := s.notifications.ListByUser(qctx, who.UserID, who.Role, limit)
	if err != nil {
		return nil, apperr.FromStore("list notifications", err)
	}
	return list, nil
}

// ScopeKind selects which notifications MarkRead touches.
type ScopeKind int

const (
	ScopeOne ScopeKind = iota
	ScopeAll
	ScopeType
)

type Scope struct {
	Kind ScopeKind
	// ID is the notification for ScopeOne.
	ID int64
	// Type and the optional IDs narrow ScopeType.
	Type models.NotificationType
	IDs  []int64
}

// MarkRead flips the caller's unread notifications in scope to read and
// returns how many changed. A type scope with nothing unread is a no-op.
func (s *Service) MarkRead(ctx context.Context, who hub.Identity, scope Scope) (int64, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		n   int64
		err error
	)
	switch scope.Kind {
	case ScopeOne:
		if scope.ID <= 0 {
			return 0, apperr.InvalidInput("notificationId is required")
		}
		n, err = s.notifications.MarkRead(qctx, who.UserID, who.Role, scope.ID)
	case ScopeAll:
		n, err = s.notifications.MarkAllRead(qctx, who.UserID, who.Role)
	case ScopeType:
		if !scope.Type.Valid() {
			return 0, apperr.InvalidInput("unknown notification type %q", scope.Type)
		}
		n, err = s.notifications.MarkTypeRead(qctx, who.UserID, who.Role, scope.Type, scope.IDs)
	default:
		return 0, apperr.InvalidInput("unknown read scope")
	}
	if err != nil {
		return 0, apperr.FromStore("mark notifications read", err)
	}
	return n, nil
}

// Delete removes the listed notifications of the caller, or every read
// one when ids is empty.
func (s *Service) Delete(ctx context.Context, who hub.Identity, ids []int64) (int64, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.notifications.Delete(qctx, who.UserID, who.Role, ids)
	if err != nil {
		return 0, apperr.FromStore("delete notifications", err)
	}
	return n, nil
}

// Welcome sends the login welcome to a member or owner unless one went
// out within the welcome window. Suppressed welcomes are dropped, not
// queued. It returns nil when nothing was sent.
func (s *Service) Welcome(ctx context.Context, who hub.Identity) (*models.Notification, error) {
	if who.Role == models.RoleAdmin {
		return nil, nil
	}

	qctx, cancel := s.withTimeout(ctx)
	claimed, err := s.users.ClaimWelcome(qctx, who.UserID, s.now(), s.welcomeWindow)
	cancel()
	if err != nil {
		return nil, apperr.FromStore("claim welcome", err)
	}
	if !claimed {
		metrics.WelcomesSuppressed.Inc()
		return nil, nil
	}

	return s.SendToUser(ctx, models.Recipient{UserID: who.UserID, Role: who.Role}, Message{
		Type:    models.NotificationSystem,
		Title:   WelcomeTitle,
		Content: WelcomeContent,
	})
}

func rolesToStrings(roles []models.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
