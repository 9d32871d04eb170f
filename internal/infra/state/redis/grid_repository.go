package redisstate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"collaborative-grid/internal/domain"
	"collaborative-grid/internal/repository"
)

// RedisGridRepository 是 GridRepository 接口的 Redis 实现。
// 每个频道一个 Hash，field 为 "x:y"，value 为颜色。
type RedisGridRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisGridRepository 创建 RedisGridRepository 实例
func NewRedisGridRepository(client *redis.Client, keyPrefix string) *RedisGridRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisGridRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "grid:"
	}
	return &RedisGridRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

var _ repository.GridRepository = (*RedisGridRepository)(nil)

// --- Key Generation Helpers ---
func (r *RedisGridRepository) gridKey(channelCode string) string {
	return fmt.Sprintf("%schannel:%s:grid", r.keyPrefix, channelCode)
}

func fieldKey(c domain.Coordinate) string {
	return fmt.Sprintf("%d:%d", c.X, c.Y)
}

func parseFieldKey(field string) (domain.Coordinate, error) {
	xs, ys, ok := strings.Cut(field, ":")
	if !ok {
		return domain.Coordinate{}, fmt.Errorf("%w: field %q", repository.ErrCorruptState, field)
	}
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: field %q", repository.ErrCorruptState, field)
	}
	return domain.Coordinate{X: x, Y: y}, nil
}

// Load 获取频道当前的完整网格 (来自 Redis Hash)
func (r *RedisGridRepository) Load(ctx context.Context, channelCode string) (domain.Grid, error) {
	if channelCode == "" {
		return nil, repository.ErrInvalidChannel
	}
	key := r.gridKey(channelCode)
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to load grid for channel %s from %s: %w", channelCode, key, err)
	}
	grid := make(domain.Grid, len(fields))
	for field, color := range fields {
		coord, err := parseFieldKey(field)
		if err != nil {
			return nil, fmt.Errorf("redis: invalid grid entry in %s: %w", key, err)
		}
		grid[coord] = color
	}
	return grid, nil
}

// SetCell 写入单个格子
func (r *RedisGridRepository) SetCell(ctx context.Context, channelCode string, cell domain.Cell) error {
	if channelCode == "" {
		return repository.ErrInvalidChannel
	}
	key := r.gridKey(channelCode)
	field := fieldKey(cell.Coordinate)
	if err := r.client.HSet(ctx, key, field, cell.Color).Err(); err != nil {
		return fmt.Errorf("redis: failed to set cell for channel %s (key: %s, field: %s): %w", channelCode, key, field, err)
	}
	return nil
}

// Replace 在一个事务中清空并重写整个 Hash
func (r *RedisGridRepository) Replace(ctx context.Context, channelCode string, grid domain.Grid) error {
	if channelCode == "" {
		return repository.ErrInvalidChannel
	}
	key := r.gridKey(channelCode)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(grid) == 0 {
			return nil
		}
		values := make(map[string]interface{}, len(grid))
		for coord, color := range grid {
			values[fieldKey(coord)] = color
		}
		pipe.HSet(ctx, key, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to replace grid for channel %s on key %s: %w", channelCode, key, err)
	}
	return nil
}

// Delete 删除频道的网格 Hash
func (r *RedisGridRepository) Delete(ctx context.Context, channelCode string) error {
	key := r.gridKey(channelCode)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete grid for channel %s on key %s: %w", channelCode, key, err)
	}
	return nil
}
