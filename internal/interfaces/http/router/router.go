// Package router assembles the Gin engine and owns the HTTP server
// lifecycle.
package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pollyhq/ratekeeper/internal/config"
	"github.com/pollyhq/ratekeeper/internal/infrastructure/monitoring"
	"github.com/pollyhq/ratekeeper/internal/interfaces/http/handlers"
	"github.com/pollyhq/ratekeeper/internal/interfaces/http/middleware"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

// Router wires handlers, middleware and the HTTP server.
type Router struct {
	engine *gin.Engine
	server *http.Server
	log    logger.Logger
}

// New builds the engine with the full middleware chain and route table.
func New(
	cfg *config.Config,
	check *handlers.CheckHandler,
	admin *handlers.AdminHandler,
	health *handlers.HealthHandler,
	metrics *monitoring.Metrics,
	tracing *monitoring.TracingManager,
	log logger.Logger,
) *Router {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Tracing(tracing),
		middleware.Logging(log),
		middleware.Metrics(metrics),
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:    []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposeHeaders: []string{
				"X-RateLimit-Type", "X-RateLimit-Limit",
				"X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After",
			},
			MaxAge: 12 * time.Hour,
		}),
	)

	engine.GET("/health/live", health.Live)
	engine.GET("/health/ready", health.Ready)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.Server.PprofEnabled {
		pprof.Register(engine)
	}

	api := engine.Group("/api/v1")
	api.POST("/check/:operation", check.Check)

	adminGroup := api.Group("/admin/rate-limit", middleware.AdminAuth(cfg.Admin.JWTSecret, log))
	adminGroup.GET("/status", admin.Status)
	adminGroup.POST("/reset", admin.Reset)
	adminGroup.GET("/stats", admin.Stats)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Router{
		engine: engine,
		server: server,
		log:    log.WithComponent("router"),
	}
}

// Engine exposes the underlying engine for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Start serves until the listener fails or Stop is called.
func (r *Router) Start() error {
	r.log.Info(context.Background(), "http server listening",
		logger.String("addr", r.server.Addr),
	)
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (r *Router) Stop(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}
