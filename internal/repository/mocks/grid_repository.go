// Package mocks 提供 repository 接口的 testify mock 实现。
package mocks

import (
	"context"

	"collaborative-grid/internal/domain"
	"collaborative-grid/internal/repository"

	"github.com/stretchr/testify/mock"
)

// GridRepository 是 repository.GridRepository 的 mock
type GridRepository struct {
	mock.Mock
}

var _ repository.GridRepository = (*GridRepository)(nil)

func (m *GridRepository) Load(ctx context.Context, channelCode string) (domain.Grid, error) {
	args := m.Called(ctx, channelCode)
	var g domain.Grid
	if v := args.Get(0); v != nil {
		g = v.(domain.Grid)
	}
	return g, args.Error(1)
}

func (m *GridRepository) SetCell(ctx context.Context, channelCode string, cell domain.Cell) error {
	args := m.Called(ctx, channelCode, cell)
	return args.Error(0)
}

func (m *GridRepository) Replace(ctx context.Context, channelCode string, grid domain.Grid) error {
	args := m.Called(ctx, channelCode, grid)
	return args.Error(0)
}

func (m *GridRepository) Delete(ctx context.Context, channelCode string) error {
	args := m.Called(ctx, channelCode)
	return args.Error(0)
}
