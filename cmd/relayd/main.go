package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/serdar/relayd/internal/config"
	"github.com/serdar/relayd/internal/logger"
	"github.com/serdar/relayd/pkg/version"
)

//nolint:gochecknoglobals // Cobra commands are wired up once at startup.
var (
	configFilenameFromFlag string

	rootCmd = &cobra.Command{
		Use:   "relayd",
		Short: "Relay HTTP requests and track per-user history and statistics.",
		Long: `relayd forwards caller-specified HTTP requests through a server-side
relay, normalizes the responses, and records each exchange in the
authenticated caller's history. History can be paged through, deleted,
and summarized into method/status breakdowns.

Running relayd without a subcommand starts the server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("relayd %s (%s) built %s\n", version.Version, version.Commit, version.Date)
		},
	}
)

func main() {
	signals := []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)

	defer func() {
		_ = logger.Logger().Sync()
	}()

	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Fatalf(ctx, "relayd: %v", err)
	}
}

//nolint:gochecknoinits // Cobra requires flag setup before command execution.
func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configFilenameFromFlag,
		"config",
		"c",
		"",
		fmt.Sprintf("path to the configuration file (default is '%s')",
			config.DefaultConfigFilename))

	rootCmd.AddCommand(serveCmd, tokenCmd, initCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFilenameFromFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.SetLevel(cfg.ParsedLogLevel)

	return cfg, nil
}
