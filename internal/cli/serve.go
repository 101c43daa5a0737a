package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jarvis/board/internal/app"
	"jarvis/board/internal/config"
	"jarvis/board/internal/search"
	"jarvis/board/internal/session"
)

const (
	shutdownTimeout      = 10 * time.Second
	sessionPurgeInterval = time.Hour
)

type sessionBackend interface {
	SaveSession(ctx context.Context, tokenHash string, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) error
	RevokeSession(ctx context.Context, tokenHash string) error
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	warnInsecureDefaults(cfg, logger)

	dataStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer dataStore.Close()

	var sessions sessionBackend = dataStore
	if cfg.RedisURL != "" {
		logger.Info("using redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		logger.Info("using the database for session storage")
	}

	var meiliClient *search.Meili
	if cfg.MeiliURL != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searchService := search.NewService(meiliClient, dataStore, logger)
	defer searchService.Close()

	service := app.New(cfg, dataStore, sessions, searchService, logger)
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap failed, will retry on next restart", zap.Error(err))
	}

	server := newHTTPServer(cfg, app.NewHTTPServer(service, cfg.CORSOrigin).Handler())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("jarvis listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("server stopped")
		return nil
	})
	if cfg.RedisURL == "" {
		group.Go(func() error {
			purgeSessions(groupCtx, dataStore, logger, sessionPurgeInterval)
			return nil
		})
	}
	return group.Wait()
}

func newHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type sessionPurger interface {
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// purgeSessions deletes expired database sessions every interval until ctx ends.
func purgeSessions(ctx context.Context, purger sessionPurger, logger *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := purger.PurgeExpiredSessions(ctx, time.Now())
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("purge expired sessions", zap.Error(err))
				}
				continue
			}
			if removed > 0 {
				logger.Debug("purged expired sessions", zap.Int64("removed", removed))
			}
		}
	}
}

func warnInsecureDefaults(cfg config.Config, logger *zap.Logger) {
	if cfg.UsesDevSessionSecret() {
		logger.Warn("JARVIS_SESSION_SECRET is not set; session cookies are signed with the public development secret")
	}
}
