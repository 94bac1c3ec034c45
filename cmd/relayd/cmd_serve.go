package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/serdar/relayd/internal/history"
	"github.com/serdar/relayd/internal/identity"
	"github.com/serdar/relayd/internal/logger"
	"github.com/serdar/relayd/internal/relay"
	"github.com/serdar/relayd/internal/server"
	"github.com/serdar/relayd/internal/stats"
)

//nolint:gochecknoglobals // Cobra commands are wired up once at startup.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.NewStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}

	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error(ctx, "Failed to close history store: ", closeErr)
		}
	}()

	relayOpts := []relay.Option{relay.WithTimeout(cfg.ParsedRequestTimeout)}
	if cfg.InsecureSkipVerify {
		logger.Warnf(ctx, "TLS certificate verification is disabled for outbound requests")

		relayOpts = append(relayOpts, relay.WithInsecureTLS())
	}

	srv := server.New(
		cfg,
		identity.NewTokenResolver(cfg.JWTSecret),
		relay.NewService(store, relayOpts...),
		store,
		stats.NewService(store),
	)

	return srv.Run(ctx)
}
