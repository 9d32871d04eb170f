package memorystate_test

import (
	"context"
	"testing"

	"collaborative-grid/internal/domain"
	memorystate "collaborative-grid/internal/infra/state/memory"
	"collaborative-grid/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGridRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := memorystate.NewMemoryGridRepository()

	empty, err := repo.Load(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.SetCell(ctx, "AB12CD", domain.Cell{Coordinate: domain.Coordinate{X: 1, Y: 2}, Color: "#FF0000"}))
	g, err := repo.Load(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, domain.Grid{{X: 1, Y: 2}: "#FF0000"}, g)

	// Load 返回副本
	g[domain.Coordinate{X: 9, Y: 9}] = "#000000"
	again, _ := repo.Load(ctx, "AB12CD")
	assert.Len(t, again, 1)

	next := domain.Grid{{X: 3, Y: 3}: "#00FF00"}
	require.NoError(t, repo.Replace(ctx, "AB12CD", next))
	next[domain.Coordinate{X: 4, Y: 4}] = "#00FF00"
	replaced, _ := repo.Load(ctx, "AB12CD")
	assert.Equal(t, domain.Grid{{X: 3, Y: 3}: "#00FF00"}, replaced)

	require.NoError(t, repo.Delete(ctx, "AB12CD"))
	deleted, _ := repo.Load(ctx, "AB12CD")
	assert.Empty(t, deleted)
}

func TestMemoryGridRepository_RejectsEmptyChannel(t *testing.T) {
	repo := memorystate.NewMemoryGridRepository()

	_, err := repo.Load(context.Background(), "")

	assert.ErrorIs(t, err, repository.ErrInvalidChannel)
	assert.ErrorIs(t, repo.Replace(context.Background(), "", nil), repository.ErrInvalidChannel)
}
