package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store *testutil.Store
	reg   *hub.Registry
	svc   *Service
	now   time.Time
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		store: testutil.NewStore(),
		reg:   hub.NewRegistry(zap.NewNop()),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	o := Options{
		Rooms:        f.store.RoomRepo(),
		Messages:     f.store.MessageRepo(),
		Admins:       f.store.AdminRepo(),
		Conns:        f.reg,
		QueryTimeout: time.Second,
		Logger:       zap.NewNop(),
		Now:          func() time.Time { return f.now },
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.svc = New(o)
	return f
}

func (f *fixture) connect(role models.Role, id int64) *hub.Client {
	c := hub.NewClient(hub.Identity{Role: role, UserID: id}, 256)
	f.reg.Register(c)
	return c
}

// drain returns every frame queued on c so far.
func drain(t *testing.T, c *hub.Client) []hub.Frame {
	t.Helper()
	var out []hub.Frame
	for {
		select {
		case raw := <-c.Outbox():
			f, err := hub.ParseFrame(raw)
			require.NoError(t, err)
			out = append(out, f)
		default:
			return out
		}
	}
}

func events(frames []hub.Frame) []string {
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.Event)
	}
	return names
}

func decodeData[T any](t *testing.T, f hub.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

func ctx() context.Context {
	return context.Background()
}
