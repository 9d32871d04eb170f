package websocket

import (
	"net/http"
	"strings"

	"collaborative-grid/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空时接受任意来源。
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// 非浏览器客户端不带 Origin
			if allowedOrigin == "" || origin == "" {
				return true
			}
			return strings.EqualFold(origin, allowedOrigin)
		},
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		hub:      h,
	}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws/:channel/:username，channel 为 "new" 时分配新频道
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	channelCode := c.Param("channel")
	username := c.Param("username")
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_code": channelCode,
		"username":     username,
	})

	if strings.TrimSpace(username) == "" || channelCode == "" {
		logCtx.Warn("WS Handler: Missing channel code or username")
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel code and username are required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 会自动发送 HTTP 错误响应
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	client := hub.NewClient(h.hub, conn, channelCode, username)
	if !h.hub.QueueMessage(hub.HubMessage{Type: hub.MessageRegister, Client: client}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}

	// Run 自身会启动读写两个协程
	client.Run()
	logCtx.Debug("WS Handler: Client read/write pumps started")
}
