package server

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	mid "CoinPulse/internal/middleware"
	"CoinPulse/internal/usecase"
	"CoinPulse/pkg/config"
	xhttp "CoinPulse/pkg/http"
	"CoinPulse/pkg/logger"
)

// App encapsulates the application lifecycle.
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	orch       *usecase.Orchestrator
	pipeline   *mid.RealtimePipeline
	httpServer *xhttp.Server
}

func New(
	cfg *config.Config,
	log *logger.Logger,
	orch *usecase.Orchestrator,
	pipeline *mid.RealtimePipeline,
	httpServer *xhttp.Server,
) *App {
	return &App{
		cfg:        cfg,
		log:        log.Component("app"),
		orch:       orch,
		pipeline:   pipeline,
		httpServer: httpServer,
	}
}

// Run starts every component and blocks until ctx is cancelled, SIGINT or
// SIGTERM arrives, or the HTTP listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http start: %w", err)
	}
	if err := a.orch.Start(ctx); err != nil {
		a.shutdown()
		return fmt.Errorf("orchestrator start: %w", err)
	}
	a.log.Info("started",
		logger.String("env", a.cfg.Environment),
		logger.Int("port", a.cfg.Server.Port),
		logger.String("sink", a.cfg.Sink.Type),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.httpServer.Errors():
	}
	a.shutdown()
	return runErr
}

// shutdown stops producers before consumers: polling and the live stream
// first, then the sink pipeline, then the HTTP listener.
func (a *App) shutdown() {
	a.orch.Shutdown()
	if a.pipeline != nil {
		a.pipeline.Stop()
	}
	if err := a.httpServer.Stop(context.Background()); err != nil {
		a.log.Warn("http shutdown error", logger.Error(err))
	}
	a.log.Info("shutdown complete")
}
