package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"collaborative-grid/internal/dto"
	"collaborative-grid/internal/metrics"
	"collaborative-grid/internal/service"

	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// HubMessage 的类型
const (
	MessageRegister   = "register"
	MessageUnregister = "unregister"
	MessageCommand    = "command"
	MessageTick       = "tick"
)

const usernameTakenMessage = "Username already taken"

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // register / unregister / command / tick
	Client  *Client // tick 时为 nil
	RawData []byte  // 仅用于 command
}

// Hub 维护活跃客户端集合，并在单个协程中按顺序处理所有事件，
// 因此同一频道的广播顺序与事件顺序一致。
type Hub struct {
	messageChan chan HubMessage

	// map[channelCode]map[*Client]bool
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	channelService *service.ChannelService
	metrics        *metrics.Metrics
	tickInterval   time.Duration
}

// NewHub 创建并返回一个新的 Hub 实例。tickInterval 为 0 时不自动推进世代。
func NewHub(channelService *service.ChannelService, m *metrics.Metrics, tickInterval time.Duration) *Hub {
	if channelService == nil {
		panic("ChannelService cannot be nil for Hub")
	}
	if m == nil {
		panic("Metrics cannot be nil for Hub")
	}
	return &Hub{
		messageChan:    make(chan HubMessage, 512),
		rooms:          make(map[string]map[*Client]bool),
		channelService: channelService,
		metrics:        m,
		tickInterval:   tickInterval,
	}
}

// Run 启动 Hub 的主事件处理循环，直到 ctx 被取消。
func (h *Hub) Run(ctx context.Context) error {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	var tick <-chan time.Time
	if h.tickInterval > 0 {
		ticker := time.NewTicker(h.tickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg := <-h.messageChan:
			h.handle(ctx, msg)
		case <-tick:
			h.tick(ctx)
		case <-ctx.Done():
			h.closeAll()
			log.Info("Hub is shutting down...")
			return nil
		}
	}
}

func (h *Hub) handle(ctx context.Context, msg HubMessage) {
	switch msg.Type {
	case MessageRegister:
		h.registerClient(ctx, msg.Client)
	case MessageUnregister:
		h.unregisterClient(ctx, msg.Client)
	case MessageCommand:
		h.handleCommand(ctx, msg)
	case MessageTick:
		h.tick(ctx)
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub: Received unknown message type")
	}
}

// registerClient 把客户端加入频道，依次发送 channel_code、full_update，
// 再向整个频道广播 user_list。
func (h *Hub) registerClient(ctx context.Context, client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_code": client.requested,
		"username":     client.username,
		"action":       "registerClient",
	})

	joined, err := h.channelService.Join(ctx, client.requested, client.username)
	if err != nil {
		reason := "Failed to join channel"
		if errors.Is(err, service.ErrUsernameTaken) {
			reason = usernameTakenMessage
		}
		logCtx.WithError(err).Warn("Client rejected")
		if payload, encErr := dto.EncodeError(reason); encErr == nil {
			client.send <- payload // 新建的通道，一定有空位
		}
		// 关闭 send 通道，WritePump 发送关闭帧后退出
		close(client.send)
		return
	}

	client.channel = joined.Code
	logCtx = logCtx.WithField("channel_code", joined.Code)

	h.roomsMu.Lock()
	if _, ok := h.rooms[joined.Code]; !ok {
		h.rooms[joined.Code] = make(map[*Client]bool)
		logCtx.Info("Client list created for new channel")
	}
	h.rooms[joined.Code][client] = true
	h.roomsMu.Unlock()
	h.metrics.ActiveConnections.Inc()
	logCtx.Info("Client registered to Hub")

	if payload, err := dto.EncodeChannelCode(joined.Code); err == nil {
		h.sendTo(client, dto.TypeChannelCode, payload)
	}
	if payload, err := dto.EncodeFullUpdate(joined.Grid.Cells()); err == nil {
		h.sendTo(client, dto.TypeFullUpdate, payload)
	}
	if payload, err := dto.EncodeUserList(joined.Users); err == nil {
		h.broadcast(joined.Code, dto.TypeUserList, payload)
	}
}

// unregisterClient 移除客户端，并向频道内剩余用户广播新的 user_list
func (h *Hub) unregisterClient(ctx context.Context, client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	code := client.channel
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_code": code,
		"username":     client.username,
		"action":       "unregisterClient",
	})

	h.roomsMu.Lock()
	roomClients, ok := h.rooms[code]
	if !ok || !roomClients[client] {
		h.roomsMu.Unlock()
		// 加入被拒绝或已在关闭时清理
		logCtx.Debug("Client not registered, nothing to unregister")
		return
	}
	delete(roomClients, client)
	close(client.send)
	if len(roomClients) == 0 {
		delete(h.rooms, code)
		logCtx.Info("Channel empty, removed from Hub")
	}
	h.roomsMu.Unlock()
	h.metrics.ActiveConnections.Dec()

	remaining, err := h.channelService.Leave(ctx, code, client.username)
	if err != nil {
		logCtx.WithError(err).Error("Failed to remove user from channel")
		return
	}
	logCtx.Info("Client unregistered from Hub")
	if len(remaining) == 0 {
		return
	}
	if payload, err := dto.EncodeUserList(remaining); err == nil {
		h.broadcast(code, dto.TypeUserList, payload)
	}
}

// handleCommand 处理客户端发来的 place_cell，成功后广播 cell_update (包括发送者)
func (h *Hub) handleCommand(ctx context.Context, msg HubMessage) {
	client := msg.Client
	if client == nil || !h.isRegistered(client) {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_code": client.channel,
		"username":     client.username,
		"operation":    "handleCommand",
	})

	cmd, err := dto.DecodeCommand(msg.RawData)
	if err != nil {
		if errors.Is(err, dto.ErrUnknownCommand) {
			logCtx.WithError(err).Debug("Ignoring unknown command")
		} else {
			logCtx.WithError(err).Warnf("Dropping malformed command (size: %d)", len(msg.RawData))
		}
		return
	}

	cell, err := h.channelService.PlaceCell(ctx, client.channel, client.username, cmd.X, cmd.Y)
	if err != nil {
		if errors.Is(err, service.ErrOutOfBounds) {
			logCtx.WithError(err).Debug("Ignoring placement outside the board")
		} else {
			logCtx.WithError(err).Error("Error placing cell")
		}
		return
	}

	payload, err := dto.EncodeCellUpdate(cell)
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal cell_update")
		return
	}
	h.broadcast(client.channel, dto.TypeCellUpdate, payload)
}

// tick 把每个活跃频道推进一代并广播结果
func (h *Hub) tick(ctx context.Context) {
	for _, code := range h.channelCodes() {
		logCtx := logrus.WithField("channel_code", code)
		gen, err := h.channelService.Advance(ctx, code)
		if err != nil {
			logCtx.WithError(err).Error("Failed to advance channel")
			continue
		}
		h.metrics.Generations.Inc()

		if gen.Resync {
			if payload, err := dto.EncodeFullUpdate(gen.Grid.Cells()); err == nil {
				h.broadcast(code, dto.TypeFullUpdate, payload)
			}
			continue
		}
		if len(gen.Upserts) > 0 {
			if payload, err := dto.EncodeCellUpdates(gen.Upserts); err == nil {
				h.broadcast(code, dto.TypeCellUpdates, payload)
			}
		}
		if len(gen.Removals) > 0 {
			if payload, err := dto.EncodeCellRemovals(gen.Removals); err == nil {
				h.broadcast(code, dto.TypeCellRemovals, payload)
			}
		}
	}
}

// closeAll 在关闭时断开所有客户端
func (h *Hub) closeAll() {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	for code, roomClients := range h.rooms {
		for client := range roomClients {
			close(client.send)
			h.metrics.ActiveConnections.Dec()
		}
		delete(h.rooms, code)
	}
}

func (h *Hub) isRegistered(client *Client) bool {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return h.rooms[client.channel][client]
}

func (h *Hub) channelCodes() []string {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	codes := make([]string, 0, len(h.rooms))
	for code := range h.rooms {
		codes = append(codes, code)
	}
	return codes
}

// sendTo 非阻塞地向单个客户端发送消息
func (h *Hub) sendTo(client *Client, kind string, message []byte) {
	select {
	case client.send <- message:
		h.metrics.Broadcasts.WithLabelValues(kind).Inc()
	default:
		logrus.WithFields(logrus.Fields{
			"channel_code": client.channel,
			"username":     client.username,
			"message_type": kind,
		}).Warn("Client send channel full, message dropped")
	}
}

// broadcast 将消息发送给频道内的所有客户端
func (h *Hub) broadcast(code, kind string, message []byte) {
	h.roomsMu.RLock()
	roomClients := h.rooms[code]
	recipients := make([]*Client, 0, len(roomClients))
	for client := range roomClients {
		recipients = append(recipients, client)
	}
	h.roomsMu.RUnlock()

	logrus.WithFields(logrus.Fields{
		"channel_code":    code,
		"message_type":    kind,
		"message_size":    len(message),
		"recipient_count": len(recipients),
	}).Debug("Broadcasting message to clients")

	for _, client := range recipients {
		h.sendTo(client, kind, message)
	}
}

// --- 公共方法 ---

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 false 表示队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// ClientCount 返回频道内当前连接数
func (h *Hub) ClientCount(code string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[code])
}
