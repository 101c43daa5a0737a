// Package cli implements the jarvis command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jarvis/board/internal/config"
	"jarvis/board/internal/logging"
	"jarvis/board/internal/store"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "jarvis",
		Short: "Personal task board and activity log",
		Long: `jarvis serves the task board UI and its JSON API.

Quick start:
  jarvis serve                    Run the server (default)
  jarvis migrate                  Apply database migrations
  jarvis reindex                  Rebuild the search indexes
  jarvis backup                   Upload a database snapshot to S3
  jarvis hash-password            Print a bcrypt hash for AUTH_PASS`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, toml or json); environment variables override it")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newReindexCmd(opts))
	root.AddCommand(newBackupCmd(opts))
	root.AddCommand(newHashPasswordCmd())
	return root
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFile(o.configFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// openStore connects to the configured database and brings its schema up to date.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*store.SQLStore, error) {
	dialect, err := store.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, dialect, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	logger.Info("database ready", zap.String("driver", string(dialect)))
	return store.NewSQLStore(db, dialect), nil
}
