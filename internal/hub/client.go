package hub

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/echodesk/internal/metrics"
	"github.com/lalith-99/echodesk/internal/models"
)

// Identity is the registry key: one live connection per (role, user).
type Identity struct {
	Role   models.Role
	UserID int64
}

func (i Identity) String() string {
	return fmt.Sprintf("%s:%d", i.Role, i.UserID)
}

// NotificationChannel is the logical channel notifications for this
// identity are pushed on. It is derived, never stored.
func (i Identity) NotificationChannel() string {
	if i.Role == models.RoleAdmin {
		return "admin-broadcast"
	}
	return fmt.Sprintf("user:%d", i.UserID)
}

// Client is one live connection. Everything written to it goes through
// a bounded outbox drained by the write pump; a client whose outbox is
// full is closed rather than allowed to grow without bound.
type Client struct {
	id       string
	identity Identity
	conn     *websocket.Conn

	outbox    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

// NewClient builds a client without a transport. Attach a websocket with
// Attach, or read Outbox directly in tests.
func NewClient(identity Identity, outboxSize int) *Client {
	if outboxSize < 1 {
		outboxSize = 1
	}
	return &Client{
		id:       uuid.NewString(),
		identity: identity,
		outbox:   make(chan []byte, outboxSize),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}
}

func (c *Client) ID() string { return c.id }
func (c *Client) Identity() Identity { return c.identity }
func (c *Client) Outbox() <-chan []byte { return c.outbox }
func (c *Client) Done() <-chan struct{} { return c.done }
func (c *Client) IsAdmin() bool { return c.identity.Role == models.RoleAdmin }

// Connected reports whether the client is still usable. The presence
// sweeper evicts registry entries for which this is false.
func (c *Client) Connected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close is idempotent and safe from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Send encodes evt and enqueues it. It never blocks.
func (c *Client) Send(evt Outbound) bool {
	frame, err := Encode(evt)
	if err != nil {
		return false
	}
	return c.SendRaw(frame)
}

// SendRaw enqueues an encoded frame. A full outbox closes the client and
// reports false; so does sending to a closed client.
func (c *Client) SendRaw(frame []byte) bool {
	if !c.Connected() {
		return false
	}
	select {
	case c.outbox <- frame:
		return true
	default:
		metrics.OutboxOverflows.Inc()
		c.Close()
		return false
	}
}

func (c *Client) Join(roomKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomKey] = struct{}{}
}

func (c *Client) Leave(roomKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomKey)
}

func (c *Client) InRoom(roomKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomKey]
	return ok
}

// Rooms returns the client's room memberships, sorted.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for k := range c.rooms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Broadcast fans evt out to every client. It encodes once; a failed send
// to one client never stops delivery to the rest. Returns how many
// clients accepted the frame.
func Broadcast(clients []*Client, evt Outbound) int {
	if len(clients) == 0 {
		return 0
	}
	frame, err := Encode(evt)
	if err != nil {
		return 0
	}
	delivered := 0
	for _, c := range clients {
		if c.SendRaw(frame) {
			delivered++
		}
	}
	return delivered
}
