// Package chat owns the support-room conversation: locating and creating
// rooms, the message pipeline and read receipts. Every mutation commits in
// the store before anything is broadcast.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/repository"
	"go.uber.org/zap"
)

// RoomKey is the only place a room's public key is derived.
func RoomKey(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// Connections is the part of the connection registry the chat services
// broadcast through. *hub.Registry satisfies it.
type Connections interface {
	RoomSubscribers(roomKey string) []*hub.Client
	ByRole(roles ...models.Role) []*hub.Client
}

// roomLocks serialises commit+enqueue per room so subscribers see messages
// in commit order. Entries are dropped once nobody holds or waits on them.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

func (l *roomLocks) lock(key string) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.locks[key]
	if !ok {
		rl = &roomLock{}
		l.locks[key] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Limiter decides whether a sender may post another message now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Options struct {
	Rooms    repository.RoomRepository
	Messages repository.MessageRepository
	Admins   repository.AdminRepository
	Conns    Connections

	// Limiter is optional; nil disables the message rate limit.
	Limiter Limiter

	// QueryTimeout bounds every store call. Zero means no bound beyond
	// the caller's context.
	QueryTimeout time.Duration
	Logger       *zap.Logger

	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

// Service bundles the three chat components. They share one set of
// per-room locks.
type Service struct {
	Rooms    *RoomManager
	Messages *Pipeline
	Reads    *ReadTracker
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	b := &base{
		conns:   opts.Conns,
		locks:   newRoomLocks(),
		timeout: opts.QueryTimeout,
		now:     opts.Now,
	}
	return &Service{
		Rooms: &RoomManager{
			base:     b,
			rooms:    opts.Rooms,
			messages: opts.Messages,
			admins:   opts.Admins,
			logger:   opts.Logger.Named("rooms"),
		},
		Messages: &Pipeline{
			base:     b,
			messages: opts.Messages,
			admins:   opts.Admins,
			limiter:  opts.Limiter,
			logger:   opts.Logger.Named("pipeline"),
		},
		Reads: &ReadTracker{
			base:   b,
			rooms:  opts.Rooms,
			logger: opts.Logger.Named("reads"),
		},
	}
}

type base struct {
	conns   Connections
	locks   *roomLocks
	timeout time.Duration
	now     func() time.Time
}

func (b *base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

// refreshAdmins tells every admin dashboard to refetch its room list.
func (b *base) refreshAdmins() {
	hub.Broadcast(b.conns.ByRole(models.RoleAdmin), hub.UpdateChatRooms{})
}
