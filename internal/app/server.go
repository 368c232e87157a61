package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vipulkatwal/disaster-manage/server/internal/api"
	"github.com/vipulkatwal/disaster-manage/server/internal/changefeed"
	"github.com/vipulkatwal/disaster-manage/server/internal/config"
	"github.com/vipulkatwal/disaster-manage/server/internal/protocol"
	"github.com/vipulkatwal/disaster-manage/server/internal/realtime"
)

type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	httpServer *http.Server
	ws         *api.WSHandler
	bridge     *changefeed.Bridge

	Registry   *realtime.Registry
	Router     *realtime.Router
	Heartbeat  *realtime.HeartbeatMonitor
	Dispatcher *protocol.Dispatcher
}

// NewLogger builds the process logger and installs it as the zap global.
func NewLogger(development bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// NewSource picks the change-feed source named by cfg. It returns nil when
// the feed is disabled.
func NewSource(cfg config.ChangeFeedConfig, logger *zap.Logger) (changefeed.Source, error) {
	switch cfg.Source {
	case config.SourceNotify:
		return &changefeed.NotifySource{DSN: cfg.DSN, Channel: cfg.Channel, Logger: logger}, nil
	case config.SourceReplication:
		return &changefeed.ReplicationSource{DSN: cfg.DSN, Slot: cfg.Slot, Logger: logger}, nil
	case config.SourceNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown change feed source %q", cfg.Source)
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.L()
	}

	reg := realtime.NewRegistry(logger)
	router := realtime.NewRouter(reg, logger)
	hb := realtime.NewHeartbeatMonitor(cfg.Heartbeat.Interval, logger)
	dispatcher := protocol.NewDispatcher(reg, router, hb, logger)

	ws := &api.WSHandler{
		Dispatcher:   dispatcher,
		Logger:       logger.Named("ws"),
		SendBuffer:   cfg.WebSocket.SendBuffer,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		ReadLimit:    cfg.WebSocket.ReadLimit,
	}

	src, err := NewSource(cfg.ChangeFeed, logger)
	if err != nil {
		return nil, err
	}
	var bridge *changefeed.Bridge
	if src != nil {
		bridge = changefeed.NewBridge(src, router,
			changefeed.WithLogger(logger),
			changefeed.WithBackoff(cfg.ChangeFeed.MinBackoff, cfg.ChangeFeed.MaxBackoff),
		)
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           api.SetupRoutes(ws, reg, hb),
			ReadHeaderTimeout: 10 * time.Second,
		},
		ws:         ws,
		bridge:     bridge,
		Registry:   reg,
		Router:     router,
		Heartbeat:  hb,
		Dispatcher: dispatcher,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down: HTTP first, then the
// open sockets, the heartbeat timers and the change feed.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()

	var wg sync.WaitGroup
	if s.bridge != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.bridge.Run(feedCtx)
		}()
	} else {
		s.logger.Info("change feed disabled")
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	s.logger.Info("shutting down", zap.Int("connections", s.Registry.Len()))
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}

	s.ws.CloseAll()
	s.Heartbeat.Stop()
	stopFeed()
	wg.Wait()

	s.logger.Info("shutdown complete")
	return runErr
}
