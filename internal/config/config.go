// Package config 从环境变量 (以及可选的 .env 文件) 加载客户端和服务端配置。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// ServerConfig 是开发服务端的配置
type ServerConfig struct {
	ServerPort   string        `env:"SERVER_PORT"   envDefault:"8000"`
	LogLevel     string        `env:"LOG_LEVEL"     envDefault:"info"`
	AppEnv       string        `env:"APP_ENV"       envDefault:"development"`
	GridWidth    int           `env:"GRID_WIDTH"    envDefault:"50"`
	GridHeight   int           `env:"GRID_HEIGHT"   envDefault:"30"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	ResyncEvery  int           `env:"RESYNC_EVERY"  envDefault:"10"`

	// REDIS_ADDR 为空时使用内存存储
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"         envDefault:"0"`
	KeyPrefix     string `env:"REDIS_KEY_PREFIX" envDefault:"grid:"`

	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`

	// 仅在配置了 Redis 时生效
	RateLimitMax    int           `env:"RATE_LIMIT_MAX"    envDefault:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1s"`
}

// ClientConfig 是无界面客户端的配置
type ClientConfig struct {
	ServerURL   string `env:"GRID_SERVER_URL" envDefault:"ws://localhost:8000"`
	Username    string `env:"GRID_USERNAME"`
	ChannelCode string `env:"GRID_CHANNEL"`
	LogLevel    string `env:"LOG_LEVEL"       envDefault:"info"`
	AppEnv      string `env:"APP_ENV"         envDefault:"development"`
	// METRICS_ADDR 为空时不启动指标端点
	MetricsAddr string `env:"METRICS_ADDR"`
}

// LoadServerConfig 从环境变量加载服务端配置
func LoadServerConfig() (*ServerConfig, error) {
	// 优先加载 .env 文件 (如果存在)，忽略错误以允许只使用环境变量
	_ = godotenv.Load()

	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.GridWidth <= 0 || cfg.GridHeight <= 0 {
		return nil, fmt.Errorf("%w: grid dimensions must be positive, got %dx%d", ErrInvalidConfig, cfg.GridWidth, cfg.GridHeight)
	}
	if cfg.TickInterval < 0 {
		return nil, fmt.Errorf("%w: TICK_INTERVAL must not be negative", ErrInvalidConfig)
	}
	if cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("%w: rate limit settings must be positive", ErrInvalidConfig)
	}
	if cfg.ResyncEvery < 0 {
		return nil, fmt.Errorf("%w: RESYNC_EVERY must not be negative", ErrInvalidConfig)
	}
	cfg.LogLevel = validLogLevel(cfg.LogLevel)
	return cfg, nil
}

// LoadClientConfig 从环境变量加载客户端配置
func LoadClientConfig() (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: GRID_SERVER_URL %q is not a valid url", ErrInvalidConfig, cfg.ServerURL)
	}
	cfg.LogLevel = validLogLevel(cfg.LogLevel)
	return cfg, nil
}

// 验证日志级别，无效时回退到 info
func validLogLevel(level string) string {
	if _, err := logrus.ParseLevel(level); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", level)
		return "info"
	}
	return level
}

// ConfigureLogger 按环境设置日志格式和级别：production 使用 JSON，其余使用文本。
func ConfigureLogger(log *logrus.Logger, level, appEnv string) {
	if appEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
}
