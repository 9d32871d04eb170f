package dispatch

import (
	"collaborative-grid/internal/dto"
	"collaborative-grid/internal/store"

	"github.com/sirupsen/logrus"
)

// Dispatcher 把入站消息翻译为对 CellStore / SessionStore 的修改。
// 除了持有的两个 Store 外没有任何状态。
type Dispatcher struct {
	cells    *store.CellStore
	sessions *store.SessionStore
}

// NewDispatcher 创建 Dispatcher 实例
func NewDispatcher(cells *store.CellStore, sessions *store.SessionStore) *Dispatcher {
	if cells == nil || sessions == nil {
		panic("CellStore and SessionStore cannot be nil for Dispatcher")
	}
	return &Dispatcher{cells: cells, sessions: sessions}
}

// Apply 完整地应用一条消息。
// 如果消息确认了会话 (非空的 channel_code)，返回该频道码，否则返回空字符串。
func (d *Dispatcher) Apply(msg dto.Message) string {
	if msg == nil {
		return ""
	}
	switch m := msg.(type) {
	case dto.CellUpdate:
		d.cells.Set(m.Cell)
	case dto.CellUpdates:
		d.cells.SetAll(m.Cells)
	case dto.CellRemovals:
		d.cells.Remove(m.Coordinates)
	case dto.FullUpdate:
		d.cells.Replace(m.Cells)
	case dto.ChannelCode:
		// 空的 code 表示尚未分配
		if m.Code == "" {
			logrus.Debug("Dispatcher: Ignoring empty channel code")
			return ""
		}
		d.sessions.SetChannelCode(m.Code)
		return m.Code
	case dto.UserList:
		d.sessions.SetUsers(m.Users)
	case dto.ServerError:
		logrus.WithField("message", m.Message).Warn("Dispatcher: Server reported an error")
	default:
		logrus.WithField("message_type", msg.Kind()).Debug("Dispatcher: Ignoring unknown message type")
	}
	return ""
}
