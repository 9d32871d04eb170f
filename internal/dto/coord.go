package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"collaborative-grid/internal/domain"
)

// wireInt 接受 JSON 数字 (3) 或字符串 ("3") 形式的整数坐标。
type wireInt int

func (w *wireInt) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	if bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("coordinate is null")
	}
	s := string(raw)
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > math.MaxInt32 || n < math.MinInt32 {
			return fmt.Errorf("coordinate %q is out of range", s)
		}
		*w = wireInt(n)
		return nil
	}
	// 3.0 / 3e0 这类整数值的浮点表示，取值范围与整数形式一致
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("coordinate %q is not a number", s)
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("coordinate %q is not an integer", s)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return fmt.Errorf("coordinate %q is out of range", s)
	}
	*w = wireInt(int(f))
	return nil
}

// wireCell 是入站消息中的格子条目 {x, y, color?}
type wireCell struct {
	X     *wireInt `json:"x"`
	Y     *wireInt `json:"y"`
	Color *string  `json:"color"`
}

func (c wireCell) coordinate() (domain.Coordinate, error) {
	if c.X == nil || c.Y == nil {
		return domain.Coordinate{}, fmt.Errorf("%w: cell is missing x or y", ErrMalformedMessage)
	}
	return domain.Coordinate{X: int(*c.X), Y: int(*c.Y)}, nil
}

func (c wireCell) cell() (domain.Cell, error) {
	coord, err := c.coordinate()
	if err != nil {
		return domain.Cell{}, err
	}
	if c.Color == nil {
		return domain.Cell{}, fmt.Errorf("%w: cell (%d,%d) is missing color", ErrMalformedMessage, coord.X, coord.Y)
	}
	return domain.Cell{Coordinate: coord, Color: *c.Color}, nil
}

func toCells(entries []wireCell) ([]domain.Cell, error) {
	cells := make([]domain.Cell, 0, len(entries))
	for _, e := range entries {
		c, err := e.cell()
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, nil
}

func toCoordinates(entries []wireCell) ([]domain.Coordinate, error) {
	coords := make([]domain.Coordinate, 0, len(entries))
	for _, e := range entries {
		c, err := e.coordinate()
		if err != nil {
			return nil, err
		}
		coords = append(coords, c)
	}
	return coords, nil
}

// outCell 是出站消息中的格子条目
type outCell struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color,omitempty"`
}

func fromCells(cells []domain.Cell) []outCell {
	out := make([]outCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, outCell{X: c.X, Y: c.Y, Color: c.Color})
	}
	return out
}
