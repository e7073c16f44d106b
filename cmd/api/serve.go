package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban/api/internal/app"
	"kanban/api/internal/cache"
	"kanban/api/internal/config"
	"kanban/api/internal/search"
	"kanban/api/internal/session"
	"kanban/api/internal/store"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, loadConfig())
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := log.StandardLogger()
	deps := app.Dependencies{}

	var service *app.Service
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		data := store.NewMemoryStore()
		client, err := wireRedis(ctx, cfg, &deps)
		if err != nil {
			return err
		}
		if client != nil {
			defer client.Close()
		}
		service = app.New(cfg, data, deps, logger)
	default:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		if len(applied) > 0 {
			logger.WithField("versions", applied).Info("migrations applied")
		}

		data := store.NewPostgresStore(db)
		client, err := wireRedis(ctx, cfg, &deps)
		if err != nil {
			return err
		}
		if client != nil {
			defer client.Close()
		}
		meili := openMeili(cfg)
		if meili != nil {
			defer meili.Close()
		}
		deps.Search = newSearch(meili, db, data)
		service = app.New(cfg, data, deps, logger)
	}

	go service.ReindexSearch(ctx)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	logger.WithFields(log.Fields{"addr": ln.Addr().String(), "storage": cfg.Storage}).Info("kanban api listening")
	// Deferred backends (Redis, Meilisearch, the database) close only after
	// serve has drained in-flight requests.
	return serve(ctx, server, ln, logger)
}

// serve runs server on ln until ctx is done, then shuts it down and returns
// once in-flight requests have finished or the drain timeout passed.
func serve(ctx context.Context, server *http.Server, ln net.Listener, logger log.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
	logger.Info("kanban api stopped")
	return nil
}

// wireRedis attaches the Redis-backed session store and board cache when
// REDIS_URL is set. Without it refresh sessions stay in the data store and
// boards are read uncached. The caller closes the returned client once the
// server has drained.
func wireRedis(ctx context.Context, cfg config.Config, deps *app.Dependencies) (*redis.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Info("REDIS_URL not set; refresh sessions use the database and the board cache is off")
		return nil, nil
	}
	client, err := session.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	deps.Sessions = session.NewRedisStore(client)
	deps.Boards = cache.NewBoard[[]app.BoardColumn](client, cfg.BoardCacheTTL, log.StandardLogger())
	log.WithField("board_cache_ttl", cfg.BoardCacheTTL.String()).Info("using redis for refresh sessions and board cache")
	return client, nil
}

func openMeili(cfg config.Config) *search.Meili {
	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return nil
	}
	return search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log.StandardLogger())
}

func newSearch(meili *search.Meili, db *sql.DB, records search.RecordSource) *search.Service {
	var index search.Index
	if meili != nil {
		index = meili
	}
	return search.NewService(index, search.NewPgFTS(db), records, log.StandardLogger())
}
