package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-sla/internal/api/http"
	"github.com/spec-kit/ticket-sla/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sla/internal/auth"
	"github.com/spec-kit/ticket-sla/internal/bootstrap"
	"github.com/spec-kit/ticket-sla/internal/config"
	"github.com/spec-kit/ticket-sla/internal/observability"
	"github.com/spec-kit/ticket-sla/internal/worker"
)

const shutdownGrace = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(cfg.Tracing, cfg.App.Version, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	c, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	c.StartHealthWorker()

	scheduler := worker.NewScheduler(c.Pool, logger)
	if err := scheduler.Add(cfg.Monitor.WarningSchedule, c.WarningJob); err != nil {
		logger.Fatal("failed to schedule warning scan", zap.Error(err))
	}
	if err := scheduler.Add(cfg.Monitor.ViolationSchedule, c.ViolationJob); err != nil {
		logger.Fatal("failed to schedule violation scan", zap.Error(err))
	}
	scheduler.Start()

	checks := map[string]handlers.Checker{}
	if c.Postgres.PoolHandle() != nil {
		checks["postgres"] = c.Postgres.Ping
	}
	if c.Redis.ClientHandle() != nil {
		checks["redis"] = c.Redis.Ping
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, c.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks),
		Auth:           handlers.NewAuthHandler(c.Auth),
		Workflows:      handlers.NewWorkflowsHandler(c.Workflows),
		Tickets:        handlers.NewTicketsHandler(c.Lifecycle, c.Health),
		SLA:            handlers.NewSLAHandler(c.Ledger, int64(cfg.Monitor.WarningLead/time.Second), c.Jobs()...),
		AuthMiddleware: auth.NewAuthMiddleware(c.Auth.TokenManager(), c.Repos.Staff),
		Metrics:        c.Metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()

	_ = app.ShutdownWithContext(shutdownCtx)
	scheduler.Stop()
	if err := c.Pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background tasks did not finish", zap.Error(err))
	}
	if err := c.Close(); err != nil {
		logger.Warn("closing connections", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("flushing traces", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
