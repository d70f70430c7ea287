package websocket_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/results-gin/internal/auth"
	"github.com/mautops/results-gin/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(id, studentID string, hub *websocket.Hub, buffer int) *websocket.Client {
	return &websocket.Client{
		ID:        id,
		UserID:    studentID,
		StudentID: studentID,
		Hub:       hub,
		Send:      make(chan []byte, buffer),
	}
}

// TestHub_RegisterUnregister 测试注册和注销
func TestHub_RegisterUnregister(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	client := newClient("c-1", "s-001", hub, 4)
	hub.Register <- client
	assert.Eventually(t, func() bool { return hub.HasClient("c-1") }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.GetClientCount())

	hub.Unregister <- client
	assert.Eventually(t, func() bool { return !hub.HasClient("c-1") }, time.Second, 10*time.Millisecond)

	_, open := <-client.Send
	assert.False(t, open)
}

// TestHub_BroadcastToStudent 测试只推送给订阅该学生的连接
func TestHub_BroadcastToStudent(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	a1 := newClient("c-1", "s-001", hub, 4)
	a2 := newClient("c-2", "s-001", hub, 4)
	b := newClient("c-3", "s-002", hub, 4)
	for _, c := range []*websocket.Client{a1, a2, b} {
		hub.Register <- c
	}
	require.Eventually(t, func() bool { return hub.GetClientCount() == 3 }, time.Second, 10*time.Millisecond)

	hub.BroadcastToStudent("s-001", []byte(`{"type":"result_published"}`))

	assert.Equal(t, `{"type":"result_published"}`, string(<-a1.Send))
	assert.Equal(t, `{"type":"result_published"}`, string(<-a2.Send))
	assert.Len(t, b.Send, 0)
}

// TestHub_SlowClientDropped 测试发送队列满的连接被断开
func TestHub_SlowClientDropped(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	slow := newClient("c-1", "s-001", hub, 1)
	hub.Register <- slow
	require.Eventually(t, func() bool { return hub.HasClient("c-1") }, time.Second, 10*time.Millisecond)

	hub.BroadcastToStudent("s-001", []byte("1"))
	hub.BroadcastToStudent("s-001", []byte("2"))

	assert.False(t, hub.HasClient("c-1"))
	assert.Equal(t, "1", string(<-slow.Send))
}

// TestWebSocketHandler 测试握手时的认证和访问控制
func TestWebSocketHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	authenticate := func(c *gin.Context) (auth.Identity, error) {
		if c.Query("token") != "good" {
			return auth.Identity{}, assert.AnError
		}
		return auth.Identity{UserID: "s-001"}, nil
	}
	canView := func(_ *gin.Context, id auth.Identity, studentID string) bool {
		return id.UserID == studentID
	}

	router := gin.New()
	router.GET("/ws/students/:id", websocket.WebSocketHandler(hub, websocket.NewUpgrader([]string{"*"}), authenticate, canView))
	server := httptest.NewServer(router)
	defer server.Close()
	base := "ws" + strings.TrimPrefix(server.URL, "http")

	_, resp, err := gorillaWS.DefaultDialer.Dial(base+"/ws/students/s-001?token=bad", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = gorillaWS.DefaultDialer.Dial(base+"/ws/students/s-002?token=good", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := gorillaWS.DefaultDialer.Dial(base+"/ws/students/s-001?token=good", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastToStudent("s-001", []byte(`{"type":"result_published"}`))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result_published"}`, string(msg))
}
