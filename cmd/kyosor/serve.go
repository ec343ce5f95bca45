package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecgard/kyosor/internal/activity"
	"github.com/alecgard/kyosor/internal/api"
	"github.com/alecgard/kyosor/internal/config"
	"github.com/alecgard/kyosor/internal/identity"
	"github.com/alecgard/kyosor/internal/ledger"
	"github.com/alecgard/kyosor/internal/metrics"
	"github.com/alecgard/kyosor/internal/mission"
	"github.com/alecgard/kyosor/internal/ratelimit"
	"github.com/alecgard/kyosor/internal/rename"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Kyosor API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	b, err := openBackend(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer b.close()

	dir := identity.NewDirectory(b.store, cfg.Security.BcryptCost)
	hours := ledger.New(b.store)
	registry := mission.NewRegistry(b.store, hours)
	renamer := rename.NewCoordinator(dir, registry, hours)

	journal := activity.NewLog(b.store, cfg.Activity.Capacity)
	collector := activity.NewCollector(journal, cfg.Activity.BatchSize, cfg.Activity.FlushInterval)
	collector.OnFlush(m.ObserveActivityFlush)
	go collector.Start(ctx)

	if err := reconcile(ctx, dir, registry); err != nil {
		return err
	}

	authLimiter := ratelimit.New(cfg.RateLimit.Auth, cfg.RateLimit.Window)
	memberLimiter := ratelimit.New(cfg.RateLimit.Member, cfg.RateLimit.Window)
	go pruneLimiters(ctx, cfg.RateLimit.Window, authLimiter, memberLimiter)

	router := api.NewRouter(api.RouterDeps{
		Directory:      dir,
		Missions:       registry,
		Ledger:         hours,
		Renamer:        renamer,
		Journal:        journal,
		Collector:      collector,
		Metrics:        m,
		AuthLimiter:    authLimiter,
		MemberLimiter:  memberLimiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		HealthCheck:    b.health,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "backend", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	err = srv.Shutdown(shutdownCtx)
	collector.Stop()
	// Drain here so the store is still open for the last batch.
	collector.Flush()
	return err
}

// reconcile drops missions led by handles the directory no longer knows.
func reconcile(ctx context.Context, dir *identity.Directory, registry *mission.Registry) error {
	known, err := dir.Handles(ctx)
	if err != nil {
		return err
	}
	dropped, err := registry.Reconcile(ctx, known)
	if err != nil {
		return err
	}
	if dropped > 0 {
		slog.Warn("dropped missions with unknown chiefs", "count", dropped)
	}
	return nil
}

func pruneLimiters(ctx context.Context, every time.Duration, limiters ...*ratelimit.Limiter) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range limiters {
				if n := l.Prune(); n > 0 {
					slog.Debug("pruned rate limit buckets", "count", n)
				}
			}
		}
	}
}
