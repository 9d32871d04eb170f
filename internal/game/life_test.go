package game_test

import (
	"math/rand/v2"
	"testing"

	"collaborative-grid/internal/domain"
	"collaborative-grid/internal/game"

	"github.com/stretchr/testify/assert"
)

const red = "#FF0000"

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func grid(color string, coords ...domain.Coordinate) domain.Grid {
	g := make(domain.Grid, len(coords))
	for _, c := range coords {
		g[c] = color
	}
	return g
}

func TestLife_DefaultDimensions(t *testing.T) {
	life := game.NewLife(0, -1, nil)

	assert.Equal(t, game.DefaultWidth, life.Width())
	assert.Equal(t, game.DefaultHeight, life.Height())
	assert.True(t, life.Contains(domain.Coordinate{X: 49, Y: 29}))
	assert.False(t, life.Contains(domain.Coordinate{X: 50, Y: 0}))
	assert.False(t, life.Contains(domain.Coordinate{X: 0, Y: -1}))
}

func TestLife_Step_BlockIsStable(t *testing.T) {
	life := game.NewLife(10, 10, seeded())
	block := grid(red,
		domain.Coordinate{X: 1, Y: 1}, domain.Coordinate{X: 2, Y: 1},
		domain.Coordinate{X: 1, Y: 2}, domain.Coordinate{X: 2, Y: 2},
	)

	next := life.Step(block)

	assert.Equal(t, block, next)
}

func TestLife_Step_BlinkerOscillates(t *testing.T) {
	life := game.NewLife(10, 10, seeded())
	horizontal := grid(red,
		domain.Coordinate{X: 1, Y: 2}, domain.Coordinate{X: 2, Y: 2}, domain.Coordinate{X: 3, Y: 2},
	)
	vertical := grid(red,
		domain.Coordinate{X: 2, Y: 1}, domain.Coordinate{X: 2, Y: 2}, domain.Coordinate{X: 2, Y: 3},
	)

	assert.Equal(t, vertical, life.Step(horizontal))
	assert.Equal(t, horizontal, life.Step(vertical))
}

func TestLife_Step_LonelyCellDies(t *testing.T) {
	life := game.NewLife(10, 10, seeded())

	next := life.Step(grid(red, domain.Coordinate{X: 5, Y: 5}))

	assert.Empty(t, next)
}

func TestLife_Step_NewbornTakesParentColor(t *testing.T) {
	life := game.NewLife(10, 10, seeded())
	g := domain.Grid{
		{X: 1, Y: 2}: "#FF0000",
		{X: 2, Y: 2}: "#00FF00",
		{X: 3, Y: 2}: "#0000FF",
	}

	next := life.Step(g)

	// (2,1) 和 (2,3) 各有三个邻居，新生细胞颜色来自这三个父细胞之一
	parents := []string{"#FF0000", "#00FF00", "#0000FF"}
	assert.Contains(t, parents, next[domain.Coordinate{X: 2, Y: 1}])
	assert.Contains(t, parents, next[domain.Coordinate{X: 2, Y: 3}])
	assert.Equal(t, "#00FF00", next[domain.Coordinate{X: 2, Y: 2}])
	assert.Len(t, next, 3)
}

func TestLife_Step_EdgesAreNotWrapped(t *testing.T) {
	life := game.NewLife(3, 3, seeded())
	// 贴着上边缘的横向 blinker，上方的新生格子在棋盘外
	g := grid(red,
		domain.Coordinate{X: 0, Y: 0}, domain.Coordinate{X: 1, Y: 0}, domain.Coordinate{X: 2, Y: 0},
	)

	next := life.Step(g)

	assert.Equal(t, grid(red, domain.Coordinate{X: 1, Y: 0}, domain.Coordinate{X: 1, Y: 1}), next)
}

func TestLife_Step_DoesNotMutateInput(t *testing.T) {
	life := game.NewLife(10, 10, seeded())
	g := grid(red, domain.Coordinate{X: 5, Y: 5})

	_ = life.Step(g)

	assert.Len(t, g, 1)
}

func TestDiff(t *testing.T) {
	prev := domain.Grid{
		{X: 0, Y: 0}: "#FF0000",
		{X: 1, Y: 0}: "#FF0000",
		{X: 2, Y: 1}: "#00FF00",
	}
	next := domain.Grid{
		{X: 0, Y: 0}: "#FF0000", // 未变化
		{X: 2, Y: 1}: "#0000FF", // 变色
		{X: 3, Y: 3}: "#FF0000", // 新增
	}

	upserts, removals := game.Diff(prev, next)

	assert.Equal(t, []domain.Cell{
		{Coordinate: domain.Coordinate{X: 2, Y: 1}, Color: "#0000FF"},
		{Coordinate: domain.Coordinate{X: 3, Y: 3}, Color: "#FF0000"},
	}, upserts)
	assert.Equal(t, []domain.Coordinate{{X: 1, Y: 0}}, removals)
}

func TestDiff_NoChanges(t *testing.T) {
	g := grid(red, domain.Coordinate{X: 1, Y: 1})

	upserts, removals := game.Diff(g, g.Clone())

	assert.Empty(t, upserts)
	assert.Empty(t, removals)
}
