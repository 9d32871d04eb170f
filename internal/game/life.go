// Package game 实现有界网格上的 Conway 生命游戏。
package game

import (
	"math/rand/v2"
	"sort"

	"collaborative-grid/internal/domain"
)

const (
	DefaultWidth  = 50
	DefaultHeight = 30
)

// Life 持有棋盘尺寸和新生细胞选色用的随机源
type Life struct {
	width  int
	height int
	rng    *rand.Rand
}

// NewLife 创建 Life 实例。rng 为 nil 时使用随机种子。
func NewLife(width, height int, rng *rand.Rand) *Life {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Life{width: width, height: height, rng: rng}
}

func (l *Life) Width() int  { return l.width }
func (l *Life) Height() int { return l.height }

// Contains 判断坐标是否在棋盘内
func (l *Life) Contains(c domain.Coordinate) bool {
	return c.X >= 0 && c.X < l.width && c.Y >= 0 && c.Y < l.height
}

func (l *Life) neighbors(c domain.Coordinate) []domain.Coordinate {
	out := make([]domain.Coordinate, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := domain.Coordinate{X: c.X + dx, Y: c.Y + dy}
			if l.Contains(n) {
				out = append(out, n)
			}
		}
	}
	return out
}

// Step 计算下一代。存活细胞有 2 或 3 个邻居时保留颜色；
// 空格子恰有 3 个邻居时诞生，颜色随机取自某个邻居。
// 棋盘外的格子不参与计算。g 本身不会被修改。
func (l *Life) Step(g domain.Grid) domain.Grid {
	candidates := make(map[domain.Coordinate]struct{}, len(g)*9)
	for c := range g {
		if !l.Contains(c) {
			continue
		}
		candidates[c] = struct{}{}
		for _, n := range l.neighbors(c) {
			candidates[n] = struct{}{}
		}
	}

	// 按固定顺序遍历，保证同一随机源得到同样的结果
	ordered := make([]domain.Coordinate, 0, len(candidates))
	for c := range candidates {
		ordered = append(ordered, c)
	}
	sortCoordinates(ordered)

	next := make(domain.Grid, len(g))
	for _, c := range ordered {
		var colors []string
		for _, n := range l.neighbors(c) {
			if color, ok := g[n]; ok {
				colors = append(colors, color)
			}
		}
		color, alive := g[c]
		switch {
		case alive && (len(colors) == 2 || len(colors) == 3):
			next[c] = color
		case !alive && len(colors) == 3:
			next[c] = colors[l.rng.IntN(len(colors))]
		}
	}
	return next
}

// Diff 计算从 prev 到 next 的增量：新增或变色的格子，以及被清除的坐标。
// 两个结果都按 (y, x) 排序。
func Diff(prev, next domain.Grid) ([]domain.Cell, []domain.Coordinate) {
	var upserts []domain.Cell
	for c, color := range next {
		if old, ok := prev[c]; !ok || old != color {
			upserts = append(upserts, domain.Cell{Coordinate: c, Color: color})
		}
	}
	var removals []domain.Coordinate
	for c := range prev {
		if _, ok := next[c]; !ok {
			removals = append(removals, c)
		}
	}
	sort.Slice(upserts, func(i, j int) bool { return less(upserts[i].Coordinate, upserts[j].Coordinate) })
	sortCoordinates(removals)
	return upserts, removals
}

func sortCoordinates(cs []domain.Coordinate) {
	sort.Slice(cs, func(i, j int) bool { return less(cs[i], cs[j]) })
}

func less(a, b domain.Coordinate) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}
