package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bili_passport/internal/logbus"
)

func TestHandler_StreamsSnapshotAndLive(t *testing.T) {
	bus := logbus.New(10)
	defer bus.Close()
	bus.Publish("login_state", map[string]any{"state": "INIT"})
	bus.Publish("noise", nil)

	srv := httptest.NewServer(NewHandler(bus, "login_state"))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first logbus.Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "login_state", first.Type)

	// 订阅建立前后都可能错过，重复发布直到收到
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish("noise", nil)
			bus.Publish("login_state", map[string]any{"state": "SMS_SENT"})
			time.Sleep(20 * time.Millisecond)
		}
	}()
	var next logbus.Message
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "login_state", next.Type)
}

func TestSameOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:8765/ws", nil)
	assert.True(t, sameOrigin(r))

	r.Header.Set("Origin", "http://127.0.0.1:8765")
	assert.True(t, sameOrigin(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, sameOrigin(r))
}
