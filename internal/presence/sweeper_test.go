package presence

import (
	"testing"
	"time"

	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweep_EvictsOnlyClosedConnections(t *testing.T) {
	reg := hub.NewRegistry(zap.NewNop())
	live := hub.NewClient(hub.Identity{Role: models.RoleMember, UserID: 1}, 1)
	dead := hub.NewClient(hub.Identity{Role: models.RoleAdmin, UserID: 2}, 1)
	reg.Register(live)
	reg.Register(dead)
	dead.Close()

	s := NewSweeper(reg, time.Minute, zap.NewNop())

	assert.Equal(t, 1, s.Sweep())
	assert.Same(t, live, reg.Lookup(models.RoleMember, 1))
	assert.Nil(t, reg.Lookup(models.RoleAdmin, 2))
	assert.Zero(t, s.Sweep(), "nothing left to evict")
}

func TestSweep_RaceWithReconnectKeepsFreshConnection(t *testing.T) {
	reg := hub.NewRegistry(zap.NewNop())
	id := hub.Identity{Role: models.RoleOwner, UserID: 3}
	old := hub.NewClient(id, 1)
	reg.Register(old)
	old.Close()

	stale := &staleSnapshot{Registry: reg, clients: []*hub.Client{old}}
	fresh := hub.NewClient(id, 1)
	reg.Register(fresh)

	s := NewSweeper(stale, time.Minute, zap.NewNop())
	assert.Zero(t, s.Sweep())
	assert.Same(t, fresh, reg.Lookup(models.RoleOwner, 3))
}

// staleSnapshot returns a snapshot taken before a reconnect.
type staleSnapshot struct {
	*hub.Registry
	clients []*hub.Client
}

func (s *staleSnapshot) Snapshot() []*hub.Client { return s.clients }

func TestStart_RunsOnSchedule(t *testing.T) {
	reg := hub.NewRegistry(zap.NewNop())
	dead := hub.NewClient(hub.Identity{Role: models.RoleMember, UserID: 9}, 1)
	reg.Register(dead)
	dead.Close()

	s := NewSweeper(reg, 50*time.Millisecond, zap.NewNop())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
