package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"collaborative-grid/internal/domain"
	"collaborative-grid/internal/game"
	"collaborative-grid/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NewChannelCode 是请求分配新频道时使用的频道码
const NewChannelCode = "new"

// Palette 是按加入顺序轮流分配给用户的颜色
var Palette = []string{
	"#FF0000", "#00FF00", "#0000FF", "#FF00FF",
	"#00FFFF", "#FFA500", "#800080", "#008000",
	"#FFC0CB", "#FFD700", "#4B0082", "#7B68EE",
}

// channel 是一个频道的内存状态
type channel struct {
	code       string
	online     []string          // 按加入顺序
	colors     map[string]string // 频道存续期间保持不变
	grid       domain.Grid
	generation uint64
}

func (ch *channel) users() []domain.User {
	users := make([]domain.User, 0, len(ch.online))
	for _, name := range ch.online {
		users = append(users, domain.User{Username: name, Color: ch.colors[name]})
	}
	return users
}

func (ch *channel) isOnline(username string) bool {
	for _, name := range ch.online {
		if name == username {
			return true
		}
	}
	return false
}

func (ch *channel) colorFor(username string) string {
	if color, ok := ch.colors[username]; ok {
		return color
	}
	color := Palette[len(ch.colors)%len(Palette)]
	ch.colors[username] = color
	return color
}

// JoinResult 是 Join 成功后返回给连接层的数据
type JoinResult struct {
	Code  string
	Color string
	Grid  domain.Grid
	Users []domain.User
}

// Generation 是一次 Advance 的结果
type Generation struct {
	Number   uint64
	Grid     domain.Grid
	Upserts  []domain.Cell
	Removals []domain.Coordinate
	// Resync 为 true 时应广播完整网格而不是增量
	Resync bool
}

// ChannelInfo 是频道的只读概况
type ChannelInfo struct {
	Code       string        `json:"code"`
	Users      []domain.User `json:"users"`
	Cells      int           `json:"cells"`
	Generation uint64        `json:"generation"`
}

// ChannelService 负责频道、用户和网格演化的业务逻辑。
type ChannelService struct {
	repo        repository.GridRepository
	life        *game.Life
	resyncEvery uint64

	mu       sync.Mutex
	channels map[string]*channel
}

// NewChannelService 创建 ChannelService 实例。
// resyncEvery 为每隔多少代发送一次完整网格，0 表示从不。
func NewChannelService(repo repository.GridRepository, life *game.Life, resyncEvery int) *ChannelService {
	if repo == nil {
		panic("GridRepository cannot be nil for ChannelService")
	}
	if life == nil {
		panic("Life cannot be nil for ChannelService")
	}
	if resyncEvery < 0 {
		resyncEvery = 0
	}
	return &ChannelService{
		repo:        repo,
		life:        life,
		resyncEvery: uint64(resyncEvery),
		channels:    make(map[string]*channel),
	}
}

// Join 把用户加入频道。requestedCode 为 NewChannelCode 时分配新频道，
// 不存在的频道码会被直接创建。同一频道内用户名不能重复。
func (s *ChannelService) Join(ctx context.Context, requestedCode, username string) (*JoinResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"channel_code": requestedCode, "username": username})
	if username == "" {
		return nil, ErrInvalidUsername
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code := requestedCode
	if code == "" || code == NewChannelCode {
		generated, err := s.generateUniqueCode()
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate unique channel code")
			return nil, ErrInternalServer
		}
		code = generated
		logCtx = logCtx.WithField("channel_code", code)
	}

	ch, ok := s.channels[code]
	if !ok {
		grid, err := s.repo.Load(ctx, code)
		if err != nil {
			logCtx.WithError(err).Error("Failed to load channel grid")
			return nil, fmt.Errorf("%w: %w", ErrInternalServer, err)
		}
		if grid == nil {
			grid = make(domain.Grid)
		}
		ch = &channel{code: code, colors: make(map[string]string), grid: grid}
		s.channels[code] = ch
		logCtx.WithField("cells", len(grid)).Info("Channel created")
	}

	if ch.isOnline(username) {
		logCtx.Warn("Username already taken in channel")
		return nil, ErrUsernameTaken
	}
	color := ch.colorFor(username)
	ch.online = append(ch.online, username)
	logCtx.WithField("color", color).Info("User joined channel")

	return &JoinResult{
		Code:  code,
		Color: color,
		Grid:  ch.grid.Clone(),
		Users: ch.users(),
	}, nil
}

// Leave 把用户移出频道并返回剩余用户。频道变空时连同其网格一起删除。
func (s *ChannelService) Leave(ctx context.Context, code, username string) ([]domain.User, error) {
	logCtx := logrus.WithFields(logrus.Fields{"channel_code": code, "username": username})

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[code]
	if !ok {
		return nil, ErrChannelNotFound
	}
	idx := -1
	for i, name := range ch.online {
		if name == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrUserNotInChannel
	}
	ch.online = append(ch.online[:idx], ch.online[idx+1:]...)
	logCtx.Info("User left channel")

	if len(ch.online) > 0 {
		return ch.users(), nil
	}

	delete(s.channels, code)
	if err := s.repo.Delete(ctx, code); err != nil {
		logCtx.WithError(err).Error("Failed to delete grid of empty channel")
		return []domain.User{}, fmt.Errorf("%w: %w", ErrInternalServer, err)
	}
	logCtx.Info("Channel empty, removed")
	return []domain.User{}, nil
}

// PlaceCell 以用户的颜色放置一个细胞。客户端提交的颜色不被采用。
func (s *ChannelService) PlaceCell(ctx context.Context, code, username string, x, y int) (domain.Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[code]
	if !ok {
		return domain.Cell{}, ErrChannelNotFound
	}
	if !ch.isOnline(username) {
		return domain.Cell{}, ErrUserNotInChannel
	}
	coord := domain.Coordinate{X: x, Y: y}
	if !s.life.Contains(coord) {
		return domain.Cell{}, fmt.Errorf("%w: (%d, %d)", ErrOutOfBounds, x, y)
	}

	cell := domain.Cell{Coordinate: coord, Color: ch.colors[username]}
	if err := s.repo.SetCell(ctx, code, cell); err != nil {
		logrus.WithFields(logrus.Fields{"channel_code": code, "username": username}).WithError(err).Error("Failed to store placed cell")
		return domain.Cell{}, fmt.Errorf("%w: %w", ErrInternalServer, err)
	}
	ch.grid[coord] = cell.Color
	return cell, nil
}

// Advance 把频道推进一代并返回与上一代的差异
func (s *ChannelService) Advance(ctx context.Context, code string) (*Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[code]
	if !ok {
		return nil, ErrChannelNotFound
	}
	next := s.life.Step(ch.grid)
	if err := s.repo.Replace(ctx, code, next); err != nil {
		logrus.WithField("channel_code", code).WithError(err).Error("Failed to store next generation")
		return nil, fmt.Errorf("%w: %w", ErrInternalServer, err)
	}
	upserts, removals := game.Diff(ch.grid, next)
	ch.grid = next
	ch.generation++

	return &Generation{
		Number:   ch.generation,
		Grid:     next.Clone(),
		Upserts:  upserts,
		Removals: removals,
		Resync:   s.resyncEvery > 0 && ch.generation%s.resyncEvery == 0,
	}, nil
}

// Channel 返回频道概况
func (s *ChannelService) Channel(code string) (*ChannelInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[code]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return &ChannelInfo{
		Code:       ch.code,
		Users:      ch.users(),
		Cells:      len(ch.grid),
		Generation: ch.generation,
	}, nil
}

// Codes 返回所有活跃频道的频道码 (有序)
func (s *ChannelService) Codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make([]string, 0, len(s.channels))
	for code := range s.channels {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// generateUniqueCode 生成一个未被使用的 6 位频道码。调用方需持有 s.mu。
func (s *ChannelService) generateUniqueCode() (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const codeLength = 6
	const maxAttempts = 10

	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		b := make([]byte, codeLength)
		for i := range b {
			b[i] = letters[int(id[i])%len(letters)]
		}
		code := string(b)
		if _, exists := s.channels[code]; !exists && code != NewChannelCode {
			return code, nil
		}
		logrus.WithField("channel_code", code).Warnf("Generated channel code already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique channel code after %d attempts", maxAttempts)
}
