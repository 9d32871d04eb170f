package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"collaborative-grid/internal/config"
	"collaborative-grid/internal/connection"
	"collaborative-grid/internal/dispatch"
	"collaborative-grid/internal/domain"
	"collaborative-grid/internal/metrics"
	"collaborative-grid/internal/service"
	"collaborative-grid/internal/store"

	"github.com/sirupsen/logrus"
)

// placements 收集重复出现的 -place x,y 参数
type placements []domain.Coordinate

func (p *placements) String() string {
	parts := make([]string, 0, len(*p))
	for _, c := range *p {
		parts = append(parts, fmt.Sprintf("%d,%d", c.X, c.Y))
	}
	return strings.Join(parts, " ")
}

func (p *placements) Set(v string) error {
	xs, ys, ok := strings.Cut(v, ",")
	if !ok {
		return fmt.Errorf("expected x,y, got %q", v)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return fmt.Errorf("invalid x in %q: %w", v, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return fmt.Errorf("invalid y in %q: %w", v, err)
	}
	*p = append(*p, domain.Coordinate{X: x, Y: y})
	return nil
}

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	var toPlace placements
	serverURL := flag.String("url", cfg.ServerURL, "server base url (ws, wss, http or https)")
	username := flag.String("user", cfg.Username, "username to join with")
	channel := flag.String("channel", cfg.ChannelCode, "channel code to join; empty requests a new channel")
	joinTimeout := flag.Duration("join-timeout", 10*time.Second, "how long to wait for the server to confirm the join")
	flag.Var(&toPlace, "place", "cell to place after joining, as x,y (repeatable)")
	flag.Parse()

	config.ConfigureLogger(logrus.StandardLogger(), cfg.LogLevel, cfg.AppEnv)
	if *username == "" {
		logrus.Fatal("A username is required (-user or GRID_USERNAME)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("grid_client")
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, m)
	}

	cells := store.NewCellStore()
	sessions := store.NewSessionStore()
	manager := connection.New(connection.Config{ServerURL: *serverURL},
		dispatch.NewDispatcher(cells, sessions), sessions, m)
	defer manager.Disconnect()
	cellService := service.NewCellService(sessions, manager)

	go watchCells(ctx, cells)
	go watchSession(ctx, sessions)

	waitCtx, cancel := context.WithTimeout(ctx, *joinTimeout)
	code, err := manager.Join(ctx, *username, *channel).Wait(waitCtx)
	cancel()
	if err != nil {
		logrus.WithError(err).Error("Gave up waiting for the server to confirm the join")
		return
	}
	if code == connection.JoinFailed {
		logrus.WithField("state", manager.State().String()).Error("Join failed")
		return
	}
	logrus.WithField("channel_code", code).Info("Joined channel, share this code to invite others")

	// channel_code 先于 user_list 到达，等本地用户出现后再放置，指令才会带上颜色
	if len(toPlace) > 0 {
		userCtx, cancel := context.WithTimeout(ctx, *joinTimeout)
		if _, ok := waitForLocalUser(userCtx, sessions); !ok {
			logrus.Warn("Local user not in user list yet, placing cells without color")
		}
		cancel()
	}
	for _, c := range toPlace {
		if !cellService.PlaceCell(c.X, c.Y) {
			logrus.WithFields(logrus.Fields{"x": c.X, "y": c.Y}).Warn("place_cell dropped")
		}
	}

	<-ctx.Done()
	logrus.Info("Disconnecting...")
}

// waitForLocalUser 等待本地用户出现在用户列表中，ctx 结束时返回 false
func waitForLocalUser(ctx context.Context, sessions *store.SessionStore) (domain.User, bool) {
	updates, cancel := sessions.Subscribe()
	defer cancel()
	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return domain.User{}, false
			}
			if user, found := s.LocalUser(); found {
				return user, true
			}
		case <-ctx.Done():
			return domain.User{}, false
		}
	}
}

func watchCells(ctx context.Context, cells *store.CellStore) {
	updates, cancel := cells.Subscribe()
	defer cancel()
	for {
		select {
		case grid, ok := <-updates:
			if !ok {
				return
			}
			logrus.WithField("cells", len(grid)).Debug("Grid updated")
		case <-ctx.Done():
			return
		}
	}
}

func watchSession(ctx context.Context, sessions *store.SessionStore) {
	updates, cancel := sessions.Subscribe()
	defer cancel()
	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return
			}
			names := make([]string, 0, len(s.Users))
			for _, u := range s.Users {
				names = append(names, u.Username)
			}
			logrus.WithFields(logrus.Fields{
				"channel_code": s.ChannelCode,
				"users":        strings.Join(names, ","),
			}).Info("Session updated")
		case <-ctx.Done():
			return
		}
	}
}

func serveMetrics(addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logrus.WithField("addr", addr).Info("Metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Error("Metrics endpoint stopped")
	}
}
