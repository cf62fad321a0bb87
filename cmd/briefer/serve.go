package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/briefer/config"
	srv "github.com/mohammad-safakhou/briefer/internal/server"
	"github.com/mohammad-safakhou/briefer/repository/redis_repository"
	"github.com/mohammad-safakhou/briefer/session"
	"github.com/mohammad-safakhou/briefer/session/inmemory"
	redis_session "github.com/mohammad-safakhou/briefer/session/redis"
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the buyer API and the tenant sales endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.Server.Address = addr
			}

			sessions, closeSessions, err := newSessionStore(ctx, a.cfg.Storage)
			if err != nil {
				return err
			}
			defer closeSessions()

			server := srv.New(srv.Deps{
				Orchestrator: a.orch,
				Registry:     a.store,
				Tenants:      a.store,
				Catalog:      a.store,
				Sessions:     sessions,
				SessionTTL:   a.cfg.Session.TTL,
				Metrics:      a.metrics,
				MetricsPath:  a.cfg.Telemetry.MetricsPath,
				BaseURL:      a.cfg.Orchestrator.ServiceBaseURL,
				Logger:       a.log,
			})

			errc := make(chan error, 1)
			go func() { errc <- server.Start(a.cfg.Server.Address) }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return serve
}

func newSessionStore(ctx context.Context, cfg config.StorageConfig) (session.Store, func(), error) {
	switch session.StoreType(cfg.SessionBackend) {
	case session.RedisStore:
		client, err := redis_repository.Conn(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("redis session store: %w", err)
		}
		return redis_session.NewRedisSessionStore(client), func() { _ = client.Close() }, nil
	default:
		return inmemory.NewInMemorySessionStore(), func() {}, nil
	}
}
