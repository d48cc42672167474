package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/echodesk/internal/auth"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/middleware"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/ws", middleware.AuthMiddleware(testSecret), f.handler.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, role models.Role, id int64, extra string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	tok, err := auth.GenerateToken(id, role, testSecret, time.Hour)
	require.NoError(t, err)
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?token=" + tok + extra
	return websocket.DefaultDialer.Dial(u, nil)
}

func readFrame(t *testing.T, conn *websocket.Conn) hub.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	fr, err := hub.ParseFrame(raw)
	require.NoError(t, err)
	return fr
}

func TestServeWS_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(testutil.User{ID: 42, Role: models.RoleMember, Active: true})
	srv := newServer(t, f)

	conn, _, err := dial(t, srv, models.RoleMember, 42, "&userId=42&userType=member&chatRoomId=user_42")
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "newNotification", readFrame(t, conn).Event)
	assert.Equal(t, "chatInitialized", readFrame(t, conn).Event)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"message","data":{"roomId":"user_42","userId":42,"message":"hi"}}`)))
	assert.Equal(t, "message", readFrame(t, conn).Event)
	assert.Equal(t, "messageSent", readFrame(t, conn).Event)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool {
		return f.reg.Lookup(models.RoleMember, 42) == nil
	}, 2*time.Second, 10*time.Millisecond, "disconnect unregisters")
}

func TestServeWS_RejectsMismatchedHandshake(t *testing.T) {
	f := newFixture(t)
	srv := newServer(t, f)

	_, resp, err := dial(t, srv, models.RoleMember, 42, "&userId=43")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, f.reg.Len())
}

func TestServeWS_RequiresToken(t *testing.T) {
	f := newFixture(t)
	srv := newServer(t, f)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
