package hub

import (
	"sort"
	"sync"

	"github.com/lalith-99/echodesk/internal/metrics"
	"github.com/lalith-99/echodesk/internal/models"
	"go.uber.org/zap"
)

// Registry is the in-memory index from identity to its live connection.
// It is a weak index: the store, not the registry, is the source of truth
// for who a user is. One mutex guards the map; callers never hold it
// across I/O.
type Registry struct {
	mu     sync.RWMutex
	slots  map[Identity]*Client
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		slots:  make(map[Identity]*Client),
		logger: logger.Named("registry"),
	}
}

// Register puts c in its identity's slot and returns the client it
// displaced, if any. The displaced client is not notified.
func (r *Registry) Register(c *Client) *Client {
	id := c.Identity()

	r.mu.Lock()
	prev := r.slots[id]
	r.slots[id] = c
	r.mu.Unlock()

	if prev == c {
		return nil
	}
	if prev != nil {
		metrics.ConnectionsReplaced.Inc()
		r.logger.Debug("connection replaced",
			zap.String("identity", id.String()),
			zap.String("old", prev.ID()),
			zap.String("new", c.ID()),
		)
		return prev
	}
	metrics.ConnectionsActive.WithLabelValues(string(id.Role)).Inc()
	return nil
}

// Unregister clears c's slot only if c still owns it, so a late
// unregister from a superseded connection cannot evict a fresher one.
func (r *Registry) Unregister(c *Client) bool {
	id := c.Identity()

	r.mu.Lock()
	owned := r.slots[id] == c
	if owned {
		delete(r.slots, id)
	}
	r.mu.Unlock()

	if owned {
		metrics.ConnectionsActive.WithLabelValues(string(id.Role)).Dec()
	}
	return owned
}

func (r *Registry) Lookup(role models.Role, userID int64) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[Identity{Role: role, UserID: userID}]
}

// RoomSubscribers returns every registered client subscribed to roomKey.
func (r *Registry) RoomSubscribers(roomKey string) []*Client {
	return r.filter(func(c *Client) bool { return c.InRoom(roomKey) })
}

// ByRole returns every registered client with one of roles.
func (r *Registry) ByRole(roles ...models.Role) []*Client {
	return r.filter(func(c *Client) bool {
		for _, role := range roles {
			if c.Identity().Role == role {
				return true
			}
		}
		return false
	})
}

// Snapshot returns every registered client.
func (r *Registry) Snapshot() []*Client {
	return r.filter(func(*Client) bool { return true })
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// filter copies matching clients out under the read lock. Results are
// ordered by identity so fan-out order is deterministic.
func (r *Registry) filter(keep func(*Client) bool) []*Client {
	r.mu.RLock()
	out := make([]*Client, 0, len(r.slots))
	for _, c := range r.slots {
		if keep(c) {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Identity(), out[j].Identity()
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.UserID < b.UserID
	})
	return out
}
