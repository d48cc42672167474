package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/repository"
	"github.com/lalith-99/echodesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomKey(t *testing.T) {
	assert.Equal(t, "user_42", RoomKey(42))
}

func TestResolveOrCreate_CreatesActiveRoomWithoutAdmin(t *testing.T) {
	f := newFixture(t)

	room, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	require.NoError(t, err)

	assert.Equal(t, "user_42", room.Key)
	assert.Equal(t, models.RoomActive, room.Status)
	assert.Nil(t, room.AdminID)

	again, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
	assert.Len(t, f.store.Rooms(), 1)
}

func TestResolveOrCreate_AssignsMostRecentAvailableAdmin(t *testing.T) {
	f := newFixture(t)
	older := time.Now().Add(-time.Hour)
	newer := time.Now().Add(-time.Minute)
	f.store.AddAdmin(testutil.Admin{ID: 1, Available: true, LastLogin: &older})
	f.store.AddAdmin(testutil.Admin{ID: 2, Available: true, LastLogin: &newer})
	f.store.AddAdmin(testutil.Admin{ID: 3, Available: false, LastLogin: &newer})

	room, err := f.svc.Rooms.ResolveOrCreate(ctx(), 7)
	require.NoError(t, err)
	require.NotNil(t, room.AdminID)
	assert.Equal(t, int64(2), *room.AdminID)
}

func TestResolveOrCreate_ConcurrentCallersShareOneRoom(t *testing.T) {
	f := newFixture(t)
	f.store.CreateDelay = 20 * time.Millisecond

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]int64, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
			errs[i] = err
			if room != nil {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Len(t, f.store.Rooms(), 1)
}

// Two managers stand in for two processes: singleflight cannot help, so
// the unique constraint and the re-read loop must.
func TestResolveOrCreate_DuplicateAcrossProcessesIsRetried(t *testing.T) {
	f := newFixture(t)
	f.store.CreateDelay = 20 * time.Millisecond
	other := New(Options{
		Rooms:    f.store.RoomRepo(),
		Messages: f.store.MessageRepo(),
		Admins:   f.store.AdminRepo(),
		Conns:    f.reg,
	})

	var wg sync.WaitGroup
	var a, b *models.ChatRoom
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); a, errA = f.svc.Rooms.ResolveOrCreate(ctx(), 9) }()
	go func() { defer wg.Done(); b, errB = other.Rooms.ResolveOrCreate(ctx(), 9) }()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, f.store.Rooms(), 1)
}

func TestResolveOrCreate_NewRoomSubscribesConnectedAdmins(t *testing.T) {
	f := newFixture(t)
	admin := f.connect(models.RoleAdmin, 1)

	_, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	require.NoError(t, err)

	assert.True(t, admin.InRoom("user_42"))
	assert.Equal(t, []string{"updateChatRooms"}, events(drain(t, admin)))
}

func TestResolveOrCreate_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.SetFail("GetActiveByUser", true)

	_, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
}

func TestJoinOwnRoom_SendsChatInitialized(t *testing.T) {
	f := newFixture(t)
	member := f.connect(models.RoleMember, 42)

	room, err := f.svc.Rooms.JoinOwnRoom(ctx(), member)
	require.NoError(t, err)
	assert.True(t, member.InRoom(room.Key))

	frames := drain(t, member)
	require.Len(t, frames, 1)
	assert.Equal(t, "chatInitialized", frames[0].Event)
	got := decodeData[hub.ChatInitialized](t, frames[0])
	assert.Equal(t, "user_42", got.Room.Key)
	assert.Empty(t, got.Messages)
}

// submitDuringHistory commits a message right after the first history
// read returns, the window in which a join used to lose messages.
type submitDuringHistory struct {
	repository.MessageRepository
	submit func()
	once   sync.Once
	done   chan struct{}
}

func (r *submitDuringHistory) ListByRoom(ctx context.Context, key string, before int64, limit int) ([]models.ChatMessage, error) {
	msgs, err := r.MessageRepository.ListByRoom(ctx, key, before, limit)
	r.once.Do(func() {
		go func() {
			defer close(r.done)
			r.submit()
		}()
		// Give the submit a chance to commit before the join continues.
		select {
		case <-r.done:
		case <-time.After(50 * time.Millisecond):
		}
	})
	return msgs, err
}

func newJoinRaceFixture(t *testing.T, sender hub.Identity) (*fixture, *submitDuringHistory) {
	t.Helper()
	repo := &submitDuringHistory{done: make(chan struct{})}
	f := newFixture(t, func(o *Options) {
		repo.MessageRepository = o.Messages
		o.Messages = repo
	})
	f.store.AddAdmin(testutil.Admin{ID: 1})
	_, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	require.NoError(t, err)

	repo.submit = func() {
		_, err := f.svc.Messages.Submit(context.Background(), "user_42", sender, "are you there?")
		assert.NoError(t, err)
	}
	return f, repo
}

// deliveredBodies counts each message once, whether it arrived in the join
// reply or as a live broadcast.
func deliveredBodies(t *testing.T, frames []hub.Frame) []string {
	t.Helper()
	var bodies []string
	for _, fr := range frames {
		switch fr.Event {
		case "chatInitialized":
			for _, m := range decodeData[hub.ChatInitialized](t, fr).Messages {
				bodies = append(bodies, m.Body)
			}
		case "chatHistory":
			for _, m := range decodeData[hub.ChatHistory](t, fr).Messages {
				bodies = append(bodies, m.Body)
			}
		case "message":
			bodies = append(bodies, decodeData[hub.NewMessage](t, fr).Body)
		}
	}
	return bodies
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not finish")
	}
}

func TestJoinOwnRoom_MessageCommittedDuringJoinIsDelivered(t *testing.T) {
	f, repo := newJoinRaceFixture(t, hub.Identity{Role: models.RoleAdmin, UserID: 1})
	member := f.connect(models.RoleMember, 42)

	_, err := f.svc.Rooms.JoinOwnRoom(ctx(), member)
	require.NoError(t, err)
	waitDone(t, repo.done)

	require.Len(t, f.store.Messages(), 1)
	assert.Equal(t, []string{"are you there?"}, deliveredBodies(t, drain(t, member)))
}

func TestJoinAsAdmin_MessageCommittedDuringJoinIsDelivered(t *testing.T) {
	f, repo := newJoinRaceFixture(t, hub.Identity{Role: models.RoleMember, UserID: 42})
	admin := f.connect(models.RoleAdmin, 1)

	_, err := f.svc.Rooms.JoinAsAdmin(ctx(), admin, "user_42")
	require.NoError(t, err)
	waitDone(t, repo.done)

	require.Len(t, f.store.Messages(), 1)
	assert.Equal(t, []string{"are you there?"}, deliveredBodies(t, drain(t, admin)))
}

func TestJoinAsAdmin(t *testing.T) {
	f := newFixture(t)
	f.store.AddAdmin(testutil.Admin{ID: 1})
	_, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	require.NoError(t, err)
	_, err = f.svc.Messages.Submit(ctx(), "user_42", hub.Identity{Role: models.RoleMember, UserID: 42}, "hi")
	require.NoError(t, err)

	admin := f.connect(models.RoleAdmin, 1)
	_, err = f.svc.Rooms.JoinAsAdmin(ctx(), admin, "user_42")
	require.NoError(t, err)

	frames := drain(t, admin)
	assert.Equal(t, []string{"roomJoined", "chatHistory"}, events(frames))
	hist := decodeData[hub.ChatHistory](t, frames[1])
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "hi", hist.Messages[0].Body)

	_, err = f.svc.Rooms.JoinAsAdmin(ctx(), admin, "user_404")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestJoinAllActiveRooms(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(testutil.User{ID: 42, Name: "Ada", Role: models.RoleMember, Active: true})
	for _, id := range []int64{42, 43} {
		_, err := f.svc.Rooms.ResolveOrCreate(ctx(), id)
		require.NoError(t, err)
	}
	_, err := f.svc.Rooms.Close(ctx(), "user_43", hub.Identity{Role: models.RoleAdmin, UserID: 1})
	require.NoError(t, err)

	admin := f.connect(models.RoleAdmin, 1)
	summaries, err := f.svc.Rooms.JoinAllActiveRooms(ctx(), admin)
	require.NoError(t, err)

	require.Len(t, summaries, 1)
	assert.Equal(t, "Ada", summaries[0].UserName)
	assert.Equal(t, []string{"user_42"}, admin.Rooms())

	frames := drain(t, admin)
	require.Len(t, frames, 1)
	assert.Equal(t, "chatRooms", frames[0].Event)
}

func TestClose_BroadcastsAndUnsubscribes(t *testing.T) {
	f := newFixture(t)
	member := f.connect(models.RoleMember, 42)
	admin := f.connect(models.RoleAdmin, 1)
	_, err := f.svc.Rooms.JoinOwnRoom(ctx(), member)
	require.NoError(t, err)
	drain(t, member)
	drain(t, admin)

	room, err := f.svc.Rooms.Close(ctx(), "user_42", admin.Identity())
	require.NoError(t, err)
	assert.Equal(t, models.RoomClosed, room.Status)

	assert.Equal(t, []string{"chatRoomClosed"}, events(drain(t, member)))
	assert.Equal(t, []string{"chatRoomClosed", "updateChatRooms"}, events(drain(t, admin)))
	assert.False(t, member.InRoom("user_42"))
	assert.False(t, admin.InRoom("user_42"))

	_, err = f.svc.Rooms.Close(ctx(), "user_42", admin.Identity())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestClose_MemberCannotCloseSomeoneElsesRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	require.NoError(t, err)

	_, err = f.svc.Rooms.Close(ctx(), "user_42", hub.Identity{Role: models.RoleMember, UserID: 7})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestReopenAfterCloseCreatesNewRoomWithSameKey(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	require.NoError(t, err)
	_, err = f.svc.Rooms.Close(ctx(), first.Key, hub.Identity{Role: models.RoleMember, UserID: 42})
	require.NoError(t, err)

	second, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
	assert.NotEqual(t, first.ID, second.ID)

	status, err := f.svc.Rooms.Status(ctx(), first.Key)
	require.NoError(t, err)
	assert.Equal(t, models.RoomActive, status.Status)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Rooms.Status(ctx(), "user_1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Rooms.ResolveOrCreate(ctx(), 1)
	require.NoError(t, err)
	_, err = f.svc.Rooms.Close(ctx(), "user_1", hub.Identity{Role: models.RoleAdmin, UserID: 9})
	require.NoError(t, err)

	room, err := f.svc.Rooms.Status(ctx(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoomClosed, room.Status)
}

func TestHistory_PagesOldestFirst(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	require.NoError(t, err)
	member := hub.Identity{Role: models.RoleMember, UserID: 42}
	for _, body := range []string{"one", "two", "three", "four"} {
		_, err := f.svc.Messages.Submit(ctx(), "user_42", member, body)
		require.NoError(t, err)
	}

	latest, err := f.svc.Rooms.History(ctx(), "user_42", 0, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "three", latest[0].Body)
	assert.Equal(t, "four", latest[1].Body)

	older, err := f.svc.Rooms.History(ctx(), "user_42", latest[0].ID, 2)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "one", older[0].Body)
}
