package service

import (
	"collaborative-grid/internal/domain"
	"collaborative-grid/internal/dto"

	"github.com/sirupsen/logrus"
)

// Sender 是出站指令的发送方，由 connection.Manager 实现
type Sender interface {
	Send(cmd dto.PlaceCell) bool
}

// LocalUserReader 提供本地用户在用户列表中的条目，由 store.SessionStore 实现
type LocalUserReader interface {
	LocalUser() (domain.User, bool)
}

// CellService 构造并发送客户端唯一的修改指令 place_cell。
// 它从不直接修改本地网格，本地视图只反映服务端确认过的状态。
type CellService struct {
	sessions LocalUserReader
	sender   Sender
}

// NewCellService 创建 CellService 实例
func NewCellService(sessions LocalUserReader, sender Sender) *CellService {
	if sessions == nil || sender == nil {
		panic("LocalUserReader and Sender must be non-nil for CellService")
	}
	return &CellService{sessions: sessions, sender: sender}
}

// PlaceCell 以本地用户的颜色请求在 (x, y) 放置格子。
// 本地用户尚未出现在用户列表中时 color 字段会被省略，由服务端决定如何处理。
// 返回值表示指令是否进入了发送队列。
func (s *CellService) PlaceCell(x, y int) bool {
	logCtx := logrus.WithFields(logrus.Fields{"x": x, "y": y})
	user, found := s.sessions.LocalUser()
	if !found {
		logCtx.Debug("Local user not in user list yet, sending place_cell without color")
	}
	queued := s.sender.Send(dto.NewPlaceCell(x, y, user.Color))
	if !queued {
		logCtx.Debug("place_cell was not queued")
	}
	return queued
}
