package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub       *Hub            // 指向其所属的 Hub
	conn      *websocket.Conn // WebSocket 连接
	username  string          // 客户端的用户名
	requested string          // URL 中请求的频道码，可能是 "new"
	channel   string          // Hub 分配的频道码，只在 Hub 协程内读写
	send      chan []byte     // 用于向此客户端发送消息的缓冲通道
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, channelCode, username string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		username:  username,
		requested: channelCode,
		send:      make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) Username() string { return c.username }
func (c *Client) CloseConn()       { _ = c.conn.Close() }

func (c *Client) logFields() logrus.Fields {
	return logrus.Fields{"username": c.username, "channel_code": c.requested}
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub 的 messageChan。
func (c *Client) ReadPump() {
	defer func() {
		// 请求 Hub 注销此客户端
		select {
		case c.hub.messageChan <- HubMessage{Type: MessageUnregister, Client: c}:
		case <-time.After(1 * time.Second):
			logrus.WithFields(c.logFields()).Warn("Timeout sending unregister message to Hub channel")
		}
		_ = c.conn.Close()
		logrus.WithFields(c.logFields()).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(c.logFields())
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		if messageType != websocket.TextMessage {
			logrus.WithFields(c.logFields()).Debugf("Received non-text message type: %d", messageType)
			continue
		}

		// 非阻塞发送到 Hub，如果 Hub 处理不过来则丢弃
		select {
		case c.hub.messageChan <- HubMessage{Type: MessageCommand, Client: c, RawData: message}:
		default:
			logrus.WithFields(c.logFields()).Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		logrus.WithFields(c.logFields()).Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了（注销或加入被拒绝）
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(c.logFields()).WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithFields(c.logFields()).WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}
