package domain

import "sort"

// Coordinate 表示网格上的一个格子位置。
// 作为 map 的键直接使用，两个坐标当且仅当 X、Y 都相等时相等。
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Cell 表示一个被占据的格子及其颜色。
type Cell struct {
	Coordinate
	Color string `json:"color"`
}

// Grid 定义了网格状态的数据结构：坐标到颜色的映射。
// 不在 Grid 中的坐标即为空格子。
type Grid map[Coordinate]string

// GridFromCells 由格子列表构建 Grid，重复坐标以后出现的为准。
func GridFromCells(cells []Cell) Grid {
	g := make(Grid, len(cells))
	for _, c := range cells {
		g[c.Coordinate] = c.Color
	}
	return g
}

// Clone 返回 Grid 的独立副本。
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

// Cells 按 (y, x) 顺序返回所有格子，便于输出和比较。
func (g Grid) Cells() []Cell {
	cells := make([]Cell, 0, len(g))
	for coord, color := range g {
		cells = append(cells, Cell{Coordinate: coord, Color: color})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Y != cells[j].Y {
			return cells[i].Y < cells[j].Y
		}
		return cells[i].X < cells[j].X
	})
	return cells
}
