package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"documind/internal/app"
	"documind/internal/config"
	"documind/internal/logger"
	"documind/internal/orchestrator"
	"documind/internal/queue"
	"documind/internal/telemetry"
	"documind/middleware"
	"documind/routes"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

const serviceName = "documind-api"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.OTelEnabled {
		shutdown, err := telemetry.InitTracer(serviceName, cfg.OTelEndpoint, cfg.OTelSampleRatio)
		if err != nil {
			logger.Error("Tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Error("Metrics disabled", "error", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize:", err)
	}
	defer a.Close()

	// Task dispatch: in-process workers or the asynq queue
	var dispatcher orchestrator.Dispatcher
	switch cfg.TaskDispatch {
	case "queue":
		redisOpt, err := queue.RedisClientOpt(cfg)
		if err != nil {
			log.Fatal("Invalid Redis settings for queue:", err)
		}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		dispatcher = queue.NewDispatcher(client, cfg.TaskTimeout)
	default:
		local := orchestrator.NewLocalDispatcher(orchestrator.RunnerFunc(a.Orchestrator.RunTask), cfg.MaxConcurrentTasks)
		local.Start()
		defer local.Stop()
		dispatcher = local
		// The worker owns maintenance when tasks run on the queue.
		a.Scheduler.Start()
		defer a.Scheduler.Stop()
	}
	manager := orchestrator.NewManager(a.Tasks, a.Documents, a.Index, dispatcher).WithUsage(a.Usage)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	if cfg.OTelEnabled {
		router.Use(middleware.TracingMiddleware(serviceName))
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RequestSizeLimit(cfg.MaxBodySize))

	routes.SetupHealthRoutes(router, map[string]routes.HealthCheck{
		"mongo": func(ctx context.Context) error { return a.Mongo.Ping(ctx, nil) },
		"redis": func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
	})
	routes.SetupTaskRoutes(router, manager, middleware.RateLimitMiddleware(a.Redis, cfg))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "dispatch", cfg.TaskDispatch)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
