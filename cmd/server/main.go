package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"collaborative-grid/internal/bootstrap"
	"collaborative-grid/internal/config"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewApp(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize application: %v", err)
	}

	app.Start(ctx)

	// 组件失败 (例如端口被占用) 时不必等到收到信号才退出
	errCh := make(chan error, 1)
	go func() { errCh <- app.Wait() }()

	select {
	case <-ctx.Done():
		logrus.Info("Shutdown signal received...")
	case err := <-errCh:
		if err != nil {
			logrus.WithError(err).Error("Application component failed, shutting down")
		} else {
			logrus.Warn("Application components stopped unexpectedly")
		}
		_ = app.Shutdown()
		os.Exit(1)
	}

	if err := app.Shutdown(); err != nil {
		logrus.WithError(err).Error("Application stopped with error")
		os.Exit(1)
	}
}
