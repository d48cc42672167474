package chat

import (
	"testing"

	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkRoomRead_ResetsUnreadAndFlipsOppositeSender(t *testing.T) {
	f := newFixture(t)
	f.store.AddAdmin(testutil.Admin{ID: 1})
	member := f.connect(models.RoleMember, 42)
	_, err := f.svc.Rooms.JoinOwnRoom(ctx(), member)
	require.NoError(t, err)
	admin := f.connect(models.RoleAdmin, 1)
	_, err = f.svc.Rooms.JoinAllActiveRooms(ctx(), admin)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Messages.Submit(ctx(), "user_42", member.Identity(), "help")
		require.NoError(t, err)
	}
	reply, err := f.svc.Messages.Submit(ctx(), "user_42", admin.Identity(), "on it")
	require.NoError(t, err)
	drain(t, member)
	drain(t, admin)

	room, err := f.svc.Reads.MarkRoomRead(ctx(), "user_42", admin.Identity())
	require.NoError(t, err)
	assert.Equal(t, 0, room.UnreadCount)

	for _, m := range f.store.Messages() {
		if m.ID == reply.ID {
			assert.Equal(t, models.MessageSent, m.Status, "own messages stay sent")
			continue
		}
		assert.Equal(t, models.MessageRead, m.Status)
		require.NotNil(t, m.ReadAt)
		assert.Equal(t, f.now, *m.ReadAt)
	}

	memberFrames := drain(t, member)
	require.Equal(t, []string{"messagesRead"}, events(memberFrames))
	read := decodeData[hub.MessagesRead](t, memberFrames[0])
	assert.Equal(t, "user_42", read.RoomID)
	assert.True(t, f.now.Equal(read.ReadAt))
	assert.Equal(t, []string{"messagesRead", "updateChatRooms"}, events(drain(t, admin)))
}

func TestMarkRoomRead_IsIdempotentButStillEmits(t *testing.T) {
	f := newFixture(t)
	member := f.connect(models.RoleMember, 42)
	_, err := f.svc.Rooms.JoinOwnRoom(ctx(), member)
	require.NoError(t, err)
	_, err = f.svc.Messages.Submit(ctx(), "user_42", member.Identity(), "hello")
	require.NoError(t, err)
	admin := hub.Identity{Role: models.RoleAdmin, UserID: 1}

	_, err = f.svc.Reads.MarkRoomRead(ctx(), "user_42", admin)
	require.NoError(t, err)
	before := f.store.Messages()
	drain(t, member)

	room, err := f.svc.Reads.MarkRoomRead(ctx(), "user_42", admin)
	require.NoError(t, err)
	assert.Equal(t, 0, room.UnreadCount)
	assert.Equal(t, before, f.store.Messages())
	assert.Equal(t, []string{"messagesRead"}, events(drain(t, member)))
}

func TestMarkRoomRead_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Rooms.ResolveOrCreate(ctx(), 42)
	require.NoError(t, err)

	_, err = f.svc.Reads.MarkRoomRead(ctx(), "", hub.Identity{Role: models.RoleAdmin, UserID: 1})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.Reads.MarkRoomRead(ctx(), "user_42", hub.Identity{Role: models.RoleOwner, UserID: 8})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Reads.MarkRoomRead(ctx(), "user_404", hub.Identity{Role: models.RoleAdmin, UserID: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.store.SetFail("MarkRoomRead", true)
	_, err = f.svc.Reads.MarkRoomRead(ctx(), "user_42", hub.Identity{Role: models.RoleMember, UserID: 42})
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
}
