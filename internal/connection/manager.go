package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"collaborative-grid/internal/dispatch"
	"collaborative-grid/internal/dto"
	"collaborative-grid/internal/metrics"
	"collaborative-grid/internal/store"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. full_update 携带整个网格，需要留足空间
	maxMessageSize = 512 * 1024

	sendBufferSize = 256

	// 未指定频道码时请求服务端分配新频道
	newChannelPath = "new"
)

// ErrInvalidUsername 表示 Join 收到了空用户名
var ErrInvalidUsername = errors.New("connection: username must not be empty")

// Config 是 Manager 的配置
type Config struct {
	ServerURL string            // 例如 ws://localhost:8000
	Dialer    *websocket.Dialer // 为空时使用 websocket.DefaultDialer
}

// link 表示一次 Join 建立的传输连接
type link struct {
	conn      *websocket.Conn // 拨号成功前为 nil
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	result    *JoinResult
	log       *logrus.Entry
}

// shutdown 停止写协程并关闭连接。graceful 时先发送关闭帧。
func (l *link) shutdown(graceful bool) {
	l.closeOnce.Do(func() {
		close(l.done)
		if l.conn == nil {
			return
		}
		if graceful {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		_ = l.conn.Close()
	})
}

// Manager 持有唯一的 websocket 连接，驱动其生命周期，
// 并把收到的每条消息交给 Dispatcher。
type Manager struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	sessions   *store.SessionStore
	metrics    *metrics.Metrics

	// mu 保护 state 和 link；消息的应用也在 mu 内完成，
	// 保证 Disconnect 返回后不会再有消息被处理。
	mu    sync.Mutex
	state State
	link  *link
}

// New 创建 Manager 实例
func New(cfg Config, dispatcher *dispatch.Dispatcher, sessions *store.SessionStore, m *metrics.Metrics) *Manager {
	if dispatcher == nil {
		panic("Dispatcher cannot be nil for Manager")
	}
	if sessions == nil {
		panic("SessionStore cannot be nil for Manager")
	}
	if m == nil {
		m = metrics.New("grid_client")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Manager{
		cfg:        cfg,
		dispatcher: dispatcher,
		sessions:   sessions,
		metrics:    m,
		state:      StateIdle,
	}
}

// State 返回当前连接状态
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Join 以 username 加入 channelCode 对应的频道 (为空则请求新频道)。
// 拨号在后台进行，返回的 JoinResult 在服务端确认后得到频道码，
// 确认前传输失败则得到 JoinFailed。之前的连接会被替换，其 JoinResult 不再被设置。
func (m *Manager) Join(ctx context.Context, username, channelCode string) *JoinResult {
	result := newJoinResult()
	logCtx := logrus.WithFields(logrus.Fields{
		"username":     username,
		"channel_code": channelCode,
	})
	target, err := m.target(username, channelCode)
	if err == nil {
		logCtx = logCtx.WithField("target", target)
	}
	l := &link{
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		result: result,
		log:    logCtx,
	}

	m.sessions.SetLocalUsername(username)

	m.mu.Lock()
	previous := m.link
	m.link = l
	m.state = StateConnecting
	m.mu.Unlock()

	if previous != nil {
		previous.log.Info("Connection replaced by a new join")
		previous.shutdown(true)
	}

	if err != nil {
		logCtx.WithError(err).Error("Invalid join target")
		_ = m.fail(l, StateErrored)
		return result
	}

	logCtx.Info("Connecting to server")
	go m.dial(ctx, l, target)
	return result
}

func (m *Manager) target(username, channelCode string) (string, error) {
	if username == "" {
		return "", ErrInvalidUsername
	}
	base, err := url.Parse(m.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("connection: invalid server url %q: %w", m.cfg.ServerURL, err)
	}
	switch base.Scheme {
	case "ws", "wss":
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	default:
		return "", fmt.Errorf("connection: unsupported scheme %q", base.Scheme)
	}
	code := channelCode
	if code == "" {
		code = newChannelPath
	}
	rawPath := strings.TrimRight(base.EscapedPath(), "/") +
		"/ws/" + url.PathEscape(code) + "/" + url.PathEscape(username)
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", fmt.Errorf("connection: invalid path %q: %w", rawPath, err)
	}
	base.Path = path
	base.RawPath = rawPath
	return base.String(), nil
}

func (m *Manager) dial(ctx context.Context, l *link, target string) {
	conn, _, err := m.cfg.Dialer.DialContext(ctx, target, nil)

	m.mu.Lock()
	if m.link != l {
		// 拨号期间被 Disconnect 或新的 Join 替换
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		l.log.Debug("Dial finished after the connection was abandoned")
		return
	}
	if err != nil {
		m.mu.Unlock()
		l.log.WithError(err).Warn("Failed to connect to server")
		_ = m.fail(l, StateErrored)
		return
	}
	l.conn = conn
	m.state = StateOpen
	m.mu.Unlock()
	l.log.Info("Connection open")

	go m.writePump(l)
	m.readPump(l)
}

// fail 把 l 置为终态并以 JoinFailed 结束其 JoinResult。
// l 已被 Disconnect 或新的 Join 替换时什么也不做并返回 false。
func (m *Manager) fail(l *link, state State) bool {
	m.mu.Lock()
	if m.link != l {
		m.mu.Unlock()
		return false
	}
	m.link = nil
	m.state = state
	m.mu.Unlock()

	l.shutdown(false)
	if l.result.settle(JoinFailed) {
		m.metrics.JoinOutcomes.WithLabelValues("failed").Inc()
		l.log.Warn("Join failed before the server confirmed the session")
	}
	return true
}

// readPump 按到达顺序逐条应用服务端消息
func (m *Manager) readPump(l *link) {
	l.conn.SetReadLimit(maxMessageSize)
	_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	// 服务端的 ping 同样视为连接活跃
	l.conn.SetPingHandler(func(appData string) error {
		_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := l.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})

	for {
		messageType, data, err := l.conn.ReadMessage()
		if err != nil {
			m.handleReadError(l, err)
			return
		}
		if messageType != websocket.TextMessage {
			l.log.Debugf("Received non-text message type: %d", messageType)
			continue
		}
		m.deliver(l, data)
	}
}

func (m *Manager) handleReadError(l *link, err error) {
	state := StateErrored
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		state = StateClosed
	}
	if !m.fail(l, state) {
		// 本地主动断开或连接已被替换
		l.log.Debug("Read loop stopped for an abandoned connection")
		return
	}
	if state == StateClosed {
		l.log.Info("Server closed the connection")
	} else {
		l.log.WithError(err).Warn("WebSocket read error")
	}
}

// deliver 解码并应用一条消息。无法解码的消息记录日志后丢弃。
func (m *Manager) deliver(l *link, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link != l || m.state != StateOpen {
		return
	}

	msg, err := dto.DecodeInbound(data)
	if err != nil {
		m.metrics.MalformedMessages.Inc()
		l.log.WithError(err).Warnf("Dropping malformed message (size: %d)", len(data))
		return
	}

	kind := msg.Kind()
	if _, unknown := msg.(dto.Unknown); unknown {
		kind = "unknown"
	}
	m.metrics.MessagesReceived.WithLabelValues(kind).Inc()

	if code := m.dispatcher.Apply(msg); code != "" {
		if l.result.settle(code) {
			m.metrics.JoinOutcomes.WithLabelValues("confirmed").Inc()
			l.log.WithField("channel_code", code).Info("Join confirmed by server")
		}
	}
}

// writePump 是连接上唯一的写入方，负责发送指令和定期 ping
func (m *Manager) writePump(l *link) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				l.log.WithError(err).Warn("Failed to write message to websocket")
				// 关闭连接让 readPump 感知错误
				_ = l.conn.Close()
				return
			}
		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.log.WithError(err).Warn("Failed to send ping message")
				_ = l.conn.Close()
				return
			}
		case <-l.done:
			return
		}
	}
}

// Send 尝试发送一条指令。连接未处于 Open 状态或发送队列已满时直接丢弃，
// 不排队也不报错。返回值表示消息是否进入了发送队列。
func (m *Manager) Send(cmd dto.PlaceCell) bool {
	data, err := json.Marshal(cmd)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal outbound command")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen || m.link == nil {
		m.metrics.DroppedSends.Inc()
		logrus.WithField("state", m.state.String()).Debug("Connection not open, dropping outbound message")
		return false
	}
	select {
	case m.link.send <- data:
		return true
	default:
		m.metrics.DroppedSends.Inc()
		m.link.log.Warn("Send buffer full, dropping outbound message")
		return false
	}
}

// Disconnect 关闭当前连接。可重复调用；返回后不会再处理任何入站消息。
// 尚未确认的 JoinResult 不会被设置。
func (m *Manager) Disconnect() {
	m.mu.Lock()
	l := m.link
	m.link = nil
	if m.state == StateConnecting || m.state == StateOpen {
		m.state = StateClosed
	}
	m.mu.Unlock()

	if l != nil {
		l.log.Info("Disconnecting")
		l.shutdown(true)
	}
}
