// Package memorystate 是 GridRepository 的进程内实现，未配置 Redis 时使用。
package memorystate

import (
	"context"
	"sync"

	"collaborative-grid/internal/domain"
	"collaborative-grid/internal/repository"
)

// MemoryGridRepository 在内存中按频道保存网格
type MemoryGridRepository struct {
	mu    sync.RWMutex
	grids map[string]domain.Grid
}

// NewMemoryGridRepository 创建 MemoryGridRepository 实例
func NewMemoryGridRepository() *MemoryGridRepository {
	return &MemoryGridRepository{grids: make(map[string]domain.Grid)}
}

var _ repository.GridRepository = (*MemoryGridRepository)(nil)

func (r *MemoryGridRepository) Load(_ context.Context, channelCode string) (domain.Grid, error) {
	if channelCode == "" {
		return nil, repository.ErrInvalidChannel
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grids[channelCode].Clone(), nil
}

func (r *MemoryGridRepository) SetCell(_ context.Context, channelCode string, cell domain.Cell) error {
	if channelCode == "" {
		return repository.ErrInvalidChannel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grids[channelCode]
	if !ok {
		g = make(domain.Grid)
		r.grids[channelCode] = g
	}
	g[cell.Coordinate] = cell.Color
	return nil
}

func (r *MemoryGridRepository) Replace(_ context.Context, channelCode string, grid domain.Grid) error {
	if channelCode == "" {
		return repository.ErrInvalidChannel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grids[channelCode] = grid.Clone()
	return nil
}

func (r *MemoryGridRepository) Delete(_ context.Context, channelCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grids, channelCode)
	return nil
}
