package hub

import (
	"sync"
	"testing"

	"github.com/lalith-99/echodesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry() *Registry {
	return NewRegistry(zap.NewNop())
}

func TestRegistry_NewerConnectionReplacesOlder(t *testing.T) {
	reg := newTestRegistry()
	id := Identity{Role: models.RoleMember, UserID: 42}

	a := NewClient(id, 4)
	b := NewClient(id, 4)

	assert.Nil(t, reg.Register(a))
	assert.Same(t, a, reg.Register(b), "register returns the displaced client")

	assert.Same(t, b, reg.Lookup(models.RoleMember, 42))
	assert.Equal(t, 1, reg.Len())

	// A displaced client is not told anything.
	assert.True(t, a.Connected())
	assert.Empty(t, a.Outbox())
}

func TestRegistry_LateUnregisterDoesNotEvictFresherConnection(t *testing.T) {
	reg := newTestRegistry()
	id := Identity{Role: models.RoleOwner, UserID: 7}

	old := NewClient(id, 4)
	fresh := NewClient(id, 4)
	reg.Register(old)
	reg.Register(fresh)

	assert.False(t, reg.Unregister(old))
	assert.Same(t, fresh, reg.Lookup(models.RoleOwner, 7))

	assert.True(t, reg.Unregister(fresh))
	assert.Nil(t, reg.Lookup(models.RoleOwner, 7))
}

func TestRegistry_RolesAreSeparateSlots(t *testing.T) {
	reg := newTestRegistry()
	member := NewClient(Identity{Role: models.RoleMember, UserID: 1}, 4)
	admin := NewClient(Identity{Role: models.RoleAdmin, UserID: 1}, 4)

	reg.Register(member)
	reg.Register(admin)

	assert.Same(t, member, reg.Lookup(models.RoleMember, 1))
	assert.Same(t, admin, reg.Lookup(models.RoleAdmin, 1))
	assert.Equal(t, []*Client{admin}, reg.ByRole(models.RoleAdmin))
	assert.Len(t, reg.ByRole(models.RoleMember, models.RoleOwner), 1)
}

func TestRegistry_RoomSubscribers(t *testing.T) {
	reg := newTestRegistry()
	a := NewClient(Identity{Role: models.RoleMember, UserID: 1}, 4)
	b := NewClient(Identity{Role: models.RoleAdmin, UserID: 9}, 4)
	c := NewClient(Identity{Role: models.RoleMember, UserID: 2}, 4)
	for _, cl := range []*Client{a, b, c} {
		reg.Register(cl)
	}

	a.Join("user_1")
	b.Join("user_1")
	b.Join("user_2")
	c.Join("user_2")

	subs := reg.RoomSubscribers("user_1")
	require.Len(t, subs, 2)
	assert.ElementsMatch(t, []*Client{a, b}, subs)

	b.Leave("user_1")
	assert.Equal(t, []*Client{a}, reg.RoomSubscribers("user_1"))
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	reg := newTestRegistry()
	id := Identity{Role: models.RoleMember, UserID: 5}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient(id, 1)
			reg.Register(c)
			reg.Unregister(c)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len())

	c := NewClient(id, 1)
	reg.Register(c)
	assert.Same(t, c, reg.Lookup(models.RoleMember, 5))
}
