package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jarvis/board/internal/auth"
	"jarvis/board/internal/backup"
	"jarvis/board/internal/config"
	"jarvis/board/internal/search"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			dataStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer dataStore.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", dataStore.Dialect())
			return nil
		},
	}
}

func newReindexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the database full-text index and push every task to Meilisearch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runReindex(cmd.Context(), cmd.OutOrStdout(), cfg, logger)
		},
	}
}

func runReindex(ctx context.Context, out io.Writer, cfg config.Config, logger *zap.Logger) error {
	dataStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer dataStore.Close()

	if err := dataStore.RebuildSearchIndex(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "database search index rebuilt")

	if cfg.MeiliURL == "" {
		return nil
	}
	meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	searchService := search.NewService(meiliClient, dataStore, logger)
	defer searchService.Close()
	if searchService.Engine() != search.EngineMeili {
		return errors.New("meilisearch is configured but not reachable")
	}
	count, err := searchService.ReindexAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "pushed %d tasks to meilisearch\n", count)
	return nil
}

func newBackupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload a snapshot of the SQLite database to S3-compatible storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			uploader, err := backup.NewUploader(cfg.Backup, logger)
			if err != nil {
				return err
			}
			dataStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer dataStore.Close()

			info, err := uploader.Run(cmd.Context(), dataStore, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded s3://%s/%s (%d bytes)\n", info.Bucket, info.Key, info.Size)
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash to use as AUTH_PASS",
		Long:  "Prints a bcrypt hash of the password argument, or of the first line of stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
