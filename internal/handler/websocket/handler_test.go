package websocket_test

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collaborative-grid/internal/game"
	wsHandler "collaborative-grid/internal/handler/websocket"
	"collaborative-grid/internal/hub"
	memorystate "collaborative-grid/internal/infra/state/memory"
	"collaborative-grid/internal/metrics"
	"collaborative-grid/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, allowedOrigin string) *httptest.Server {
	t.Helper()
	srv, _ := newServerWithHub(t, allowedOrigin)
	return srv
}

func newServerWithHub(t *testing.T, allowedOrigin string) (*httptest.Server, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := service.NewChannelService(memorystate.NewMemoryGridRepository(),
		game.NewLife(10, 10, rand.New(rand.NewPCG(1, 1))), 0)
	h := hub.NewHub(svc, metrics.New("handler_test"), 0)
	r := gin.New()
	r.GET("/ws/:channel/:username", wsHandler.NewWebSocketHandler(h, allowedOrigin).HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHandleConnection_RejectsForeignOrigin(t *testing.T) {
	srv := newServer(t, "http://localhost:5173")
	header := http.Header{"Origin": []string{"http://evil.example"}}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/new/alice"), header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandleConnection_AcceptsAllowedOrigin(t *testing.T) {
	srv := newServer(t, "http://localhost:5173")
	header := http.Header{"Origin": []string{"http://localhost:5173"}}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/new/alice"), header)

	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
}

func TestHandleConnection_BlankUsername(t *testing.T) {
	srv := newServer(t, "")
	dialer := websocket.Dialer{HandshakeTimeout: time.Second}

	_, resp, err := dialer.Dial(wsURL(srv, "/ws/new/%20"), nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleConnection_StartsClientPumps(t *testing.T) {
	// Arrange
	srv, h := newServerWithHub(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Act
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/ROOM01/alice"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Assert: 写协程把 channel_code 发出，读协程把放置指令交给 Hub
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "channel_code", first["type"])
	assert.Equal(t, "ROOM01", first["code"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "place_cell", "x": 1, "y": 1}))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == "cell_update" {
			assert.Equal(t, float64(1), msg["x"])
			break
		}
	}
	assert.Equal(t, 1, h.ClientCount("ROOM01"))
}
