package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"shopplanner/internal/api"
	"shopplanner/internal/config"
	"shopplanner/internal/database"
	"shopplanner/internal/db"
	"shopplanner/internal/metrics"
)

type configLoader func() (*config.Config, error)

func newServeCommand(load configLoader, logger *zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the planner backend API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cfg, *logger)
		},
	}
}

func serve(cfg *config.Config, logger zerolog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := db.Open(cfg.Database.Path, loc, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = config.WatchResources(ctx, cfg.ResourcesPath(), cfg.ResourcesReloadInterval(), logger, func(rc *config.ResourcesConfig) {
		if err := store.SyncResourcesFromConfig(ctx, rc); err != nil {
			logger.Error().Err(err).Msg("sync resources failed")
		}
	})
	if err != nil {
		return fmt.Errorf("resources config %s: %w", cfg.ResourcesPath(), err)
	}

	checks := []api.ReadyCheck{{Name: "db", Check: store.PingContext}}
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		checks = append(checks, api.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	backups := database.NewBackupService(store, database.BackupOptions{
		Enabled:       cfg.Backup.Enabled,
		Interval:      cfg.BackupInterval(),
		Dir:           cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, logger)
	go backups.Start(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	server := api.NewServer(store, api.Options{
		OrganizationID: cfg.Planner.OrganizationID,
		Location:       loc,
		APIKey:         cfg.API.APIKey,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
		ReadyChecks:    checks,
		Tables:         store,
	}, logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Str("org_id", cfg.Planner.OrganizationID).Str("timezone", loc.String()).Msg("planner started")
	if err := server.Start(cfg.APIPort()); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	logger.Info().Msg("planner stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
