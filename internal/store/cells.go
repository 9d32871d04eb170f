package store

import (
	"sync"

	"collaborative-grid/internal/domain"
)

// CellStore 保存本地的网格视图。只由 Dispatcher 写入，对外只提供副本。
type CellStore struct {
	mu    sync.RWMutex
	grid  domain.Grid
	feeds *broadcaster[domain.Grid]
}

// NewCellStore 创建空的 CellStore
func NewCellStore() *CellStore {
	return &CellStore{
		grid:  make(domain.Grid),
		feeds: newBroadcaster[domain.Grid](),
	}
}

// Set 设置单个格子的颜色 (覆盖旧值)
func (s *CellStore) Set(cell domain.Cell) {
	s.SetAll([]domain.Cell{cell})
}

// SetAll 按顺序写入一批格子，同一坐标以最后一次为准
func (s *CellStore) SetAll(cells []domain.Cell) {
	s.mu.Lock()
	for _, c := range cells {
		s.grid[c.Coordinate] = c.Color
	}
	s.feeds.publish(s.grid.Clone())
	s.mu.Unlock()
}

// Remove 清除一批格子，不存在的坐标直接忽略
func (s *CellStore) Remove(coords []domain.Coordinate) {
	s.mu.Lock()
	changed := false
	for _, c := range coords {
		if _, ok := s.grid[c]; ok {
			delete(s.grid, c)
			changed = true
		}
	}
	if changed {
		s.feeds.publish(s.grid.Clone())
	}
	s.mu.Unlock()
}

// Replace 用给定的格子整体替换网格内容
func (s *CellStore) Replace(cells []domain.Cell) {
	next := domain.GridFromCells(cells)
	s.mu.Lock()
	s.grid = next
	s.feeds.publish(next.Clone())
	s.mu.Unlock()
}

// Get 返回某个坐标的颜色
func (s *CellStore) Get(coord domain.Coordinate) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	color, ok := s.grid[coord]
	return color, ok
}

// Len 返回被占据的格子数
func (s *CellStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grid)
}

// Snapshot 返回当前网格的副本
func (s *CellStore) Snapshot() domain.Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.Clone()
}

// Subscribe 订阅网格变化。通道中总是先有一份当前快照；调用返回的函数取消订阅。
func (s *CellStore) Subscribe() (<-chan domain.Grid, func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeds.subscribe(s.grid.Clone())
}
