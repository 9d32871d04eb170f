package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"collaborative-grid/internal/config"
	"collaborative-grid/internal/game"
	httpHandler "collaborative-grid/internal/handler/http"
	wsHandler "collaborative-grid/internal/handler/websocket"
	"collaborative-grid/internal/hub"
	"collaborative-grid/internal/infra/setup"
	memorystate "collaborative-grid/internal/infra/state/memory"
	redisstate "collaborative-grid/internal/infra/state/redis"
	"collaborative-grid/internal/metrics"
	"collaborative-grid/internal/middleware"
	"collaborative-grid/internal/repository"
	"collaborative-grid/internal/service"
)

const shutdownTimeout = 10 * time.Second

// App 结构体包含开发服务端的所有组件和配置
type App struct {
	Config      *config.ServerConfig
	Log         *logrus.Logger
	RedisClient *redis.Client // 未配置 REDIS_ADDR 时为 nil
	Metrics     *metrics.Metrics
	Hub         *hub.Hub
	Router      *gin.Engine
	HttpServer  *http.Server

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewApp 创建并初始化应用的所有组件
func NewApp(ctx context.Context, cfg *config.ServerConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config cannot be nil")
	}

	// 1. 初始化 Logger (同时设置标准 logger，包内各处使用 logrus.WithFields)
	log := logrus.New()
	config.ConfigureLogger(log, cfg.LogLevel, cfg.AppEnv)
	config.ConfigureLogger(logrus.StandardLogger(), cfg.LogLevel, cfg.AppEnv)
	log.Infof("Logger initialized (Level: %s, Format: %T)", log.GetLevel(), log.Formatter)

	// 2. 初始化基础设施和 Repository
	var (
		redisClient *redis.Client
		gridRepo    repository.GridRepository
	)
	if cfg.RedisAddr != "" {
		client, err := setup.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		redisClient = client
		gridRepo = redisstate.NewRedisGridRepository(redisClient, cfg.KeyPrefix)
		log.Info("Using Redis grid repository")
	} else {
		gridRepo = memorystate.NewMemoryGridRepository()
		log.Info("REDIS_ADDR not set, using in-memory grid repository")
	}

	// 3. 初始化 Services 和 Hub
	m := metrics.New("grid_server")
	life := game.NewLife(cfg.GridWidth, cfg.GridHeight, nil)
	channelService := service.NewChannelService(gridRepo, life, cfg.ResyncEvery)
	hubInstance := hub.NewHub(channelService, m, cfg.TickInterval)
	log.WithFields(logrus.Fields{
		"width":         life.Width(),
		"height":        life.Height(),
		"tick_interval": cfg.TickInterval.String(),
		"resync_every":  cfg.ResyncEvery,
	}).Info("Hub initialized")

	// 4. 初始化 Handlers
	channelHandler := httpHandler.NewChannelHandler(channelService)
	websocketHandler := wsHandler.NewWebSocketHandler(hubInstance, cfg.CORSAllowedOrigin)

	// 5. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigin))

	limited := []gin.HandlerFunc{}
	if redisClient != nil {
		limited = append(limited, middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))
	}

	api := router.Group("/api", limited...)
	{
		api.GET("/channels", channelHandler.ListChannels)
		api.GET("/channels/:code", channelHandler.GetChannel)
	}
	router.GET("/ws/:channel/:username", append(limited, websocketHandler.HandleConnection)...)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/metrics", gin.WrapH(m.Handler()))
	log.Info("Router setup complete")

	return &App{
		Config:      cfg,
		Log:         log,
		RedisClient: redisClient,
		Metrics:     m,
		Hub:         hubInstance,
		Router:      router,
		HttpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start 启动 Hub 和 HTTP 服务器。任一组件失败都会让其余组件停止，
// 错误由 Wait 或 Shutdown 返回。
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.group = g

	g.Go(func() error {
		return a.Hub.Run(gctx)
	})
	g.Go(func() error {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.WithError(err).Errorf("Failed to start HTTP server on %s", a.HttpServer.Addr)
			return fmt.Errorf("http server: %w", err)
		}
		a.Log.Info("HTTP server stopped listening.")
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		a.Log.Info("HTTP server shut down gracefully.")
		return nil
	})
}

// Wait 阻塞直到所有组件退出，返回第一个失败组件的错误。
// 任一组件失败都会让 Wait 返回，调用方应同时等待 Wait 和退出信号。
func (a *App) Wait() error {
	if a.group == nil {
		return nil
	}
	return a.group.Wait()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() error {
	a.Log.Info("Shutting down application...")
	if a.cancel != nil {
		a.cancel()
	}
	err := a.Wait()

	if a.RedisClient != nil {
		if closeErr := a.RedisClient.Close(); closeErr != nil {
			a.Log.Errorf("Error closing Redis connection: %v", closeErr)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	a.Log.Info("Application shutdown complete.")
	return err
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
