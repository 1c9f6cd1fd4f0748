package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mr1hm/go-hazard-tasks/internal/api"
	"github.com/mr1hm/go-hazard-tasks/internal/broadcast"
	"github.com/mr1hm/go-hazard-tasks/internal/config"
	"github.com/mr1hm/go-hazard-tasks/internal/dispatch"
	"github.com/mr1hm/go-hazard-tasks/internal/engine"
	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/metrics"
	"github.com/mr1hm/go-hazard-tasks/internal/orchestrator"
	"github.com/mr1hm/go-hazard-tasks/internal/repository"
)

func newServeCommand() *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the dispatch runner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(level)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVar(&level, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")
	return cmd
}

func serve(cfg *config.Config) error {
	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("error registering metrics: %w", err)
	}

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broadcaster := broadcast.NewBroadcaster()
	src, pipeline := newSources(cfg)

	pubsub := dispatch.NewGoChannel(int64(cfg.Worker.BufferSize))
	defer pubsub.Close()

	orch := orchestrator.New(db, src, pipeline, dispatch.NewPublisher(pubsub), broadcaster, orchestrator.Config{
		OutputPrefix: cfg.Engine.OutputPrefix,
	})

	// The runner subscribes before the API accepts requests; the in-process
	// pub/sub drops messages without subscribers.
	runner := dispatch.NewRunner(pubsub, newEngine(cfg.Engine), orch, cfg.Worker)
	if err := runner.Start(ctx); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimit))

	handler := api.NewHandler(orch, broadcaster)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	broadcaster.Close() // end task streams so Shutdown does not wait on them

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()
	runner.Stop()

	slog.Info("shutdown complete")
	return nil
}

func newEngine(cfg config.EngineConfig) engine.Engine {
	if cfg.URL == "" {
		slog.Warn("ENGINE_URL not set, jobs will be logged and marked completed")
		return engine.NewNoop()
	}
	return engine.NewHTTP(cfg.URL, cfg.Timeout)
}
