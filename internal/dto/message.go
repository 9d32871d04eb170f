package dto

import (
	"encoding/json"
	"fmt"

	"collaborative-grid/internal/domain"
)

// 入站消息类型 (服务端 -> 客户端)
const (
	TypeCellUpdate   = "cell_update"
	TypeCellUpdates  = "cell_updates"
	TypeCellRemovals = "cell_removals"
	TypeFullUpdate   = "full_update"
	TypeChannelCode  = "channel_code"
	TypeUserList     = "user_list"
	TypeError        = "error"
)

// 出站指令类型 (客户端 -> 服务端)
const (
	TypePlaceCell = "place_cell"
)

// Message 是所有入站消息的联合类型，只能由 DecodeInbound 构造。
type Message interface {
	Kind() string
	inbound()
}

// CellUpdate 设置单个格子的颜色
type CellUpdate struct {
	Cell domain.Cell
}

// CellUpdates 批量设置格子颜色
type CellUpdates struct {
	Cells []domain.Cell
}

// CellRemovals 批量清除格子
type CellRemovals struct {
	Coordinates []domain.Coordinate
}

// FullUpdate 携带完整的网格状态，用于重新同步
type FullUpdate struct {
	Cells []domain.Cell
}

// ChannelCode 服务端分配的频道码
type ChannelCode struct {
	Code string
}

// UserList 频道内的完整用户列表
type UserList struct {
	Users []domain.User
}

// ServerError 服务端拒绝请求时下发的错误 (例如用户名已被占用)
type ServerError struct {
	Message string
}

// Unknown 未定义的消息类型，保留 type 便于记录日志
type Unknown struct {
	Type string
}

func (CellUpdate) Kind() string   { return TypeCellUpdate }
func (CellUpdates) Kind() string  { return TypeCellUpdates }
func (CellRemovals) Kind() string { return TypeCellRemovals }
func (FullUpdate) Kind() string   { return TypeFullUpdate }
func (ChannelCode) Kind() string  { return TypeChannelCode }
func (UserList) Kind() string     { return TypeUserList }
func (ServerError) Kind() string  { return TypeError }
func (u Unknown) Kind() string    { return u.Type }

func (CellUpdate) inbound()   {}
func (CellUpdates) inbound()  {}
func (CellRemovals) inbound() {}
func (FullUpdate) inbound()   {}
func (ChannelCode) inbound()  {}
func (UserList) inbound()     {}
func (ServerError) inbound()  {}
func (Unknown) inbound()      {}

// DecodeInbound 解析一条服务端消息。
// 未知的 type 返回 Unknown 且不报错；消息体无法解析时返回包装了 ErrMalformedMessage 的错误。
func DecodeInbound(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedMessage)
	}
	var env struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	switch *env.Type {
	case TypeCellUpdate:
		var p wireCell
		if err := unmarshalPayload(data, &p); err != nil {
			return nil, err
		}
		cell, err := p.cell()
		if err != nil {
			return nil, err
		}
		return CellUpdate{Cell: cell}, nil

	case TypeCellUpdates:
		var p struct {
			Updates []wireCell `json:"updates"`
		}
		if err := unmarshalPayload(data, &p); err != nil {
			return nil, err
		}
		cells, err := toCells(p.Updates)
		if err != nil {
			return nil, err
		}
		return CellUpdates{Cells: cells}, nil

	case TypeCellRemovals:
		var p struct {
			Removals []wireCell `json:"removals"`
		}
		if err := unmarshalPayload(data, &p); err != nil {
			return nil, err
		}
		coords, err := toCoordinates(p.Removals)
		if err != nil {
			return nil, err
		}
		return CellRemovals{Coordinates: coords}, nil

	case TypeFullUpdate:
		var p struct {
			State *[]wireCell `json:"state"`
		}
		if err := unmarshalPayload(data, &p); err != nil {
			return nil, err
		}
		// 快照会清空本地网格，缺少 state 时不能当作空快照处理
		if p.State == nil {
			return nil, fmt.Errorf("%w: full_update is missing state", ErrMalformedMessage)
		}
		cells, err := toCells(*p.State)
		if err != nil {
			return nil, err
		}
		return FullUpdate{Cells: cells}, nil

	case TypeChannelCode:
		var p struct {
			Code string `json:"code"`
		}
		if err := unmarshalPayload(data, &p); err != nil {
			return nil, err
		}
		return ChannelCode{Code: p.Code}, nil

	case TypeUserList:
		var p struct {
			Users []domain.User `json:"users"`
		}
		if err := unmarshalPayload(data, &p); err != nil {
			return nil, err
		}
		if p.Users == nil {
			p.Users = []domain.User{}
		}
		return UserList{Users: p.Users}, nil

	case TypeError:
		var p struct {
			Message string `json:"message"`
		}
		if err := unmarshalPayload(data, &p); err != nil {
			return nil, err
		}
		return ServerError{Message: p.Message}, nil

	default:
		return Unknown{Type: *env.Type}, nil
	}
}

func unmarshalPayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}
