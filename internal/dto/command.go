package dto

import (
	"encoding/json"
	"fmt"
)

// PlaceCell 是客户端唯一会发出的修改指令。
// Color 为空时不会被序列化 (本地用户尚未出现在用户列表中)。
type PlaceCell struct {
	Type  string `json:"type"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color,omitempty"`
}

// NewPlaceCell 构造 place_cell 指令
func NewPlaceCell(x, y int, color string) PlaceCell {
	return PlaceCell{Type: TypePlaceCell, X: x, Y: y, Color: color}
}

// DecodeCommand 解析客户端发来的指令 (服务端使用)
func DecodeCommand(data []byte) (PlaceCell, error) {
	var p struct {
		Type  string   `json:"type"`
		X     *wireInt `json:"x"`
		Y     *wireInt `json:"y"`
		Color string   `json:"color"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return PlaceCell{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if p.Type != TypePlaceCell {
		return PlaceCell{}, fmt.Errorf("%w: %q", ErrUnknownCommand, p.Type)
	}
	if p.X == nil || p.Y == nil {
		return PlaceCell{}, fmt.Errorf("%w: place_cell is missing x or y", ErrMalformedMessage)
	}
	return NewPlaceCell(int(*p.X), int(*p.Y), p.Color), nil
}
