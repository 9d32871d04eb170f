package repository

import (
	"context"

	"collaborative-grid/internal/domain"
)

// GridRepository 定义了频道实时网格状态的存取操作，
// 由内存或 Redis 实现。频道清空后状态随之删除，不做持久化。
type GridRepository interface {
	// Load 返回频道当前的网格。频道没有任何状态时返回空 Grid。
	Load(ctx context.Context, channelCode string) (domain.Grid, error)

	// SetCell 写入单个格子 (放置细胞)。
	SetCell(ctx context.Context, channelCode string, cell domain.Cell) error

	// Replace 用 grid 整体替换频道状态 (每一代计算之后)。
	Replace(ctx context.Context, channelCode string, grid domain.Grid) error

	// Delete 删除频道的全部状态。
	Delete(ctx context.Context, channelCode string) error
}
