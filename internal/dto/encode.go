package dto

import (
	"encoding/json"

	"collaborative-grid/internal/domain"
)

// 以下编码函数供开发服务端构造下行消息

func EncodeCellUpdate(c domain.Cell) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		outCell
	}{TypeCellUpdate, outCell{X: c.X, Y: c.Y, Color: c.Color}})
}

func EncodeCellUpdates(cells []domain.Cell) ([]byte, error) {
	return json.Marshal(struct {
		Type    string    `json:"type"`
		Updates []outCell `json:"updates"`
	}{TypeCellUpdates, fromCells(cells)})
}

func EncodeCellRemovals(coords []domain.Coordinate) ([]byte, error) {
	removals := make([]outCell, 0, len(coords))
	for _, c := range coords {
		removals = append(removals, outCell{X: c.X, Y: c.Y})
	}
	return json.Marshal(struct {
		Type     string    `json:"type"`
		Removals []outCell `json:"removals"`
	}{TypeCellRemovals, removals})
}

func EncodeFullUpdate(cells []domain.Cell) ([]byte, error) {
	return json.Marshal(struct {
		Type  string    `json:"type"`
		State []outCell `json:"state"`
	}{TypeFullUpdate, fromCells(cells)})
}

func EncodeChannelCode(code string) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}{TypeChannelCode, code})
}

func EncodeUserList(users []domain.User) ([]byte, error) {
	if users == nil {
		users = []domain.User{}
	}
	return json.Marshal(struct {
		Type  string        `json:"type"`
		Users []domain.User `json:"users"`
	}{TypeUserList, users})
}

// ErrorDTO 表示发送给客户端的错误消息数据结构
type ErrorDTO struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func EncodeError(message string) ([]byte, error) {
	return json.Marshal(ErrorDTO{Type: TypeError, Message: message})
}
