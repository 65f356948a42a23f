// Command server runs the ratekeeper rate limiting service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/pollyhq/ratekeeper/internal/config"
	"github.com/pollyhq/ratekeeper/internal/domain/service"
	"github.com/pollyhq/ratekeeper/internal/infrastructure/audit"
	"github.com/pollyhq/ratekeeper/internal/infrastructure/monitoring"
	"github.com/pollyhq/ratekeeper/internal/infrastructure/ratelimit"
	"github.com/pollyhq/ratekeeper/internal/infrastructure/store/memstore"
	"github.com/pollyhq/ratekeeper/internal/infrastructure/store/redisstore"
	"github.com/pollyhq/ratekeeper/internal/interfaces/http/handlers"
	"github.com/pollyhq/ratekeeper/internal/interfaces/http/router"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	bootstrapLog, err := monitoring.NewZapLogger(&config.LogConfig{Level: "info", Format: "json"})
	if err != nil {
		os.Exit(1)
	}

	loader := config.NewLoader(bootstrapLog)
	cfg, err := loader.Load()
	if err != nil {
		bootstrapLog.Fatal(context.Background(), "failed to load configuration", err)
	}

	log, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		bootstrapLog.Fatal(context.Background(), "failed to initialize logger", err)
	}
	ctx := context.Background()

	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, log)
	if err != nil {
		log.Fatal(ctx, "failed to initialize tracing", err)
	}

	var store service.CounterStore
	switch cfg.Store.Driver {
	case "memory":
		store = memstore.New()
		log.Info(ctx, "using in-memory counter store")
	default:
		store, err = redisstore.Connect(cfg.Store.Redis, log)
		if err != nil {
			log.Fatal(ctx, "failed to connect counter store", err)
		}
	}

	var auditSvc service.AuditService
	if cfg.Audit.Enabled {
		auditSvc, err = audit.NewRecorder(cfg.Audit, log)
		if err != nil {
			log.Fatal(ctx, "failed to initialize audit recorder", err)
		}
	} else {
		auditSvc = audit.NewNoop()
	}

	resolver, err := ratelimit.NewResolver(cfg.RateLimit.Whitelist, cfg.RateLimit.TrustedProxies, log)
	if err != nil {
		log.Fatal(ctx, "failed to build ip lists", err)
	}

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	limiter, err := ratelimit.New(cfg.RateLimit, store, resolver, auditSvc, metrics, log)
	if err != nil {
		log.Fatal(ctx, "failed to build rate limiter", err)
	}

	// Config file changes update the IP lists in place. Rules, store and
	// server settings require a restart.
	loader.Watch(func(next *config.Config) {
		if err := resolver.Swap(next.RateLimit.Whitelist, next.RateLimit.TrustedProxies); err != nil {
			log.Warn(ctx, "rejected ip list update", logger.Error(err))
		}
	})

	srv := router.New(
		cfg,
		handlers.NewCheckHandler(limiter, log),
		handlers.NewAdminHandler(limiter, resolver, auditSvc, log),
		handlers.NewHealthHandler(store, log),
		metrics,
		tracing,
		log,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(srv.Start)
	group.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			log.Info(groupCtx, "shutdown signal received", logger.String("signal", sig.String()))
		case <-groupCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error(ctx, "server exited with error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := auditSvc.Close(); err != nil {
		log.Error(closeCtx, "failed to close audit service", err)
	}
	if err := store.Close(); err != nil {
		log.Error(closeCtx, "failed to close counter store", err)
	}
	if err := tracing.Shutdown(closeCtx); err != nil {
		log.Error(closeCtx, "failed to shut down tracing", err)
	}
	log.Info(ctx, "server stopped")
}
