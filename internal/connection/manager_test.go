package connection_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collaborative-grid/internal/connection"
	"collaborative-grid/internal/dispatch"
	"collaborative-grid/internal/domain"
	"collaborative-grid/internal/dto"
	"collaborative-grid/internal/metrics"
	"collaborative-grid/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// fakeServer 接受 websocket 连接并把服务端一侧交给测试脚本
type fakeServer struct {
	*httptest.Server
	paths chan string
	conns chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{
		paths: make(chan string, 4),
		conns: make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.paths <- r.URL.Path
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *fakeServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(waitFor):
		t.Fatal("client never connected")
		return nil
	}
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

type harness struct {
	manager  *connection.Manager
	cells    *store.CellStore
	sessions *store.SessionStore
}

func newHarness(serverURL string) *harness {
	cells := store.NewCellStore()
	sessions := store.NewSessionStore()
	d := dispatch.NewDispatcher(cells, sessions)
	m := connection.New(connection.Config{ServerURL: serverURL}, d, sessions, metrics.New("test"))
	return &harness{manager: m, cells: cells, sessions: sessions}
}

func waitCode(t *testing.T, r *connection.JoinResult) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	code, err := r.Wait(ctx)
	require.NoError(t, err, "join never settled")
	return code
}

func waitState(t *testing.T, m *connection.Manager, want connection.State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, waitFor, 10*time.Millisecond,
		"expected state %s, got %s", want, m.State())
}

func TestManager_JoinScenario(t *testing.T) {
	// Arrange
	srv := newFakeServer(t)
	h := newHarness(srv.wsURL())

	// Act
	result := h.manager.Join(context.Background(), "alice", "")
	conn := srv.accept(t)
	assert.Equal(t, "/ws/new/alice", <-srv.paths)
	waitState(t, h.manager, connection.StateOpen)
	assert.Equal(t, "alice", h.sessions.Snapshot().LocalUsername)

	send(t, conn, `{"type":"user_list","users":[{"username":"alice","color":"#FF0000"}]}`)
	send(t, conn, `{"type":"cell_update","x":3,"y":4,"color":"#FF0000"}`)
	require.Eventually(t, func() bool { return h.cells.Len() == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, domain.Grid{{X: 3, Y: 4}: "#FF0000"}, h.cells.Snapshot())
	assert.Equal(t, []domain.User{{Username: "alice", Color: "#FF0000"}}, h.sessions.Snapshot().Users)

	send(t, conn, `{"type":"cell_removals","removals":[{"x":3,"y":4}]}`)
	_, settled := result.Code()
	assert.False(t, settled, "join must not settle before channel_code")
	send(t, conn, `{"type":"channel_code","code":"AB12"}`)

	// Assert
	assert.Equal(t, "AB12", waitCode(t, result))
	assert.Equal(t, 0, h.cells.Len())
	assert.Equal(t, "AB12", h.sessions.Snapshot().ChannelCode)
}

func TestManager_JoinWithChannelCodeUsesEscapedPath(t *testing.T) {
	srv := newFakeServer(t)
	h := newHarness(srv.URL) // http:// 会被转换为 ws://

	h.manager.Join(context.Background(), "bob smith", "XY99")
	srv.accept(t)

	assert.Equal(t, "/ws/XY99/bob smith", <-srv.paths)
}

func TestManager_TransportErrorBeforeConfirmationResolvesEmpty(t *testing.T) {
	srv := newFakeServer(t)
	h := newHarness(srv.wsURL())

	result := h.manager.Join(context.Background(), "alice", "")
	conn := srv.accept(t)
	waitState(t, h.manager, connection.StateOpen)
	_ = conn.Close() // 不发送关闭帧，客户端看到的是传输错误

	assert.Equal(t, connection.JoinFailed, waitCode(t, result))
	waitState(t, h.manager, connection.StateErrored)
}

func TestManager_DialFailureResolvesEmpty(t *testing.T) {
	srv := newFakeServer(t)
	url := srv.wsURL()
	srv.Close()
	h := newHarness(url)

	result := h.manager.Join(context.Background(), "alice", "")

	assert.Equal(t, connection.JoinFailed, waitCode(t, result))
	assert.Equal(t, connection.StateErrored, h.manager.State())
}

func TestManager_InvalidUsernameResolvesEmpty(t *testing.T) {
	h := newHarness("ws://127.0.0.1:1")

	result := h.manager.Join(context.Background(), "", "")

	code, settled := result.Code()
	assert.True(t, settled)
	assert.Equal(t, connection.JoinFailed, code)
}

func TestManager_JoinResolvesOnlyOnce(t *testing.T) {
	srv := newFakeServer(t)
	h := newHarness(srv.wsURL())

	result := h.manager.Join(context.Background(), "alice", "")
	conn := srv.accept(t)
	send(t, conn, `{"type":"channel_code","code":""}`) // 尚未分配，忽略
	send(t, conn, `{"type":"channel_code","code":"AB12"}`)
	send(t, conn, `{"type":"channel_code","code":"CD34"}`)
	require.Equal(t, "AB12", waitCode(t, result))

	require.Eventually(t, func() bool { return h.sessions.Snapshot().ChannelCode == "CD34" }, waitFor, 10*time.Millisecond)
	_ = conn.Close()
	waitState(t, h.manager, connection.StateErrored)

	code, _ := result.Code()
	assert.Equal(t, "AB12", code, "后续消息和错误都不能改变已确定的结果")
}

func TestManager_MalformedMessageIsDropped(t *testing.T) {
	srv := newFakeServer(t)
	h := newHarness(srv.wsURL())

	result := h.manager.Join(context.Background(), "alice", "")
	conn := srv.accept(t)
	send(t, conn, `{"type":"cell_update","x":`)
	send(t, conn, `{"type":"something_new"}`)
	send(t, conn, `{"type":"cell_update","x":1,"y":1,"color":"#00FF00"}`)
	send(t, conn, `{"type":"channel_code","code":"AB12"}`)

	assert.Equal(t, "AB12", waitCode(t, result))
	assert.Equal(t, domain.Grid{{X: 1, Y: 1}: "#00FF00"}, h.cells.Snapshot())
	assert.Equal(t, connection.StateOpen, h.manager.State())
}

func TestManager_SendOnlyWhenOpen(t *testing.T) {
	srv := newFakeServer(t)
	h := newHarness(srv.wsURL())

	assert.False(t, h.manager.Send(dto.NewPlaceCell(1, 2, "#FF0000")), "Idle 状态下应丢弃")

	h.manager.Join(context.Background(), "alice", "")
	conn := srv.accept(t)
	waitState(t, h.manager, connection.StateOpen)

	require.True(t, h.manager.Send(dto.NewPlaceCell(1, 2, "#FF0000")))
	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"place_cell","x":1,"y":2,"color":"#FF0000"}`, string(data))

	h.manager.Disconnect()
	assert.False(t, h.manager.Send(dto.NewPlaceCell(1, 2, "#FF0000")), "断开后应丢弃")
}

func TestManager_DisconnectFreezesStoresAndLeavesJoinPending(t *testing.T) {
	srv := newFakeServer(t)
	h := newHarness(srv.wsURL())

	result := h.manager.Join(context.Background(), "alice", "")
	conn := srv.accept(t)
	send(t, conn, `{"type":"cell_update","x":1,"y":1,"color":"#00FF00"}`)
	require.Eventually(t, func() bool { return h.cells.Len() == 1 }, waitFor, 10*time.Millisecond)

	h.manager.Disconnect()
	h.manager.Disconnect() // 幂等
	assert.Equal(t, connection.StateClosed, h.manager.State())

	// 客户端发出了关闭帧
	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// 断开后不再处理任何消息，store 保留最后的值
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"full_update","state":[]}`))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.Grid{{X: 1, Y: 1}: "#00FF00"}, h.cells.Snapshot())

	_, settled := result.Code()
	assert.False(t, settled, "Disconnect 不会设置未确认的 join 结果")
}

func TestManager_NewJoinReplacesPreviousTransport(t *testing.T) {
	srv := newFakeServer(t)
	h := newHarness(srv.wsURL())

	first := h.manager.Join(context.Background(), "alice", "")
	firstConn := srv.accept(t)
	waitState(t, h.manager, connection.StateOpen)

	second := h.manager.Join(context.Background(), "alice", "AB12")
	secondConn := srv.accept(t)
	send(t, secondConn, `{"type":"channel_code","code":"AB12"}`)
	assert.Equal(t, "AB12", waitCode(t, second))

	// 旧连接上的消息不再被处理，旧结果保持未设置
	_ = firstConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cell_update","x":9,"y":9,"color":"#000000"}`))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.cells.Len())
	_, settled := first.Code()
	assert.False(t, settled)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", connection.StateIdle.String())
	assert.Equal(t, "connecting", connection.StateConnecting.String())
	assert.Equal(t, "open", connection.StateOpen.String())
	assert.Equal(t, "closed", connection.StateClosed.String())
	assert.Equal(t, "errored", connection.StateErrored.String())
}
