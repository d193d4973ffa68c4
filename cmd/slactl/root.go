package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/bootstrap"
	"github.com/spec-kit/ticket-sla/internal/config"
	"github.com/spec-kit/ticket-sla/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:           "slactl",
	Short:         "Operate the ticket SLA service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// withContainer loads configuration, builds the services and hands them to fn.
func withContainer(ctx context.Context, fn func(*bootstrap.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	c, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("closing connections", zap.Error(err))
		}
	}()
	return fn(c)
}
