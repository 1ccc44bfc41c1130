package main

import (
	"context"
	"log"

	"documind/internal/app"
	"documind/internal/config"
	"documind/internal/logger"
	"documind/internal/queue"
	"documind/internal/telemetry"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.OTelEnabled {
		shutdown, err := telemetry.InitTracer("documind-worker", cfg.OTelEndpoint, cfg.OTelSampleRatio)
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

	a, err := app.New(context.Background(), cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize:", err)
	}
	defer a.Close()

	a.Scheduler.Start()
	defer a.Scheduler.Stop()

	redisOpt, err := queue.RedisClientOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis settings for queue:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.MaxConcurrentTasks,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				"default":           3,
			},
			ShutdownTimeout: cfg.TaskTimeout,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				logger.Error("Task failed", "type", task.Type(), "retry", retried, "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(a.Orchestrator)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskRunAnalysis, processor.ProcessAnalysis)

	logger.Info("Starting Asynq worker",
		"concurrency", cfg.MaxConcurrentTasks,
		"queues", []string{queue.QueueCritical, "default"},
		"redis", redisOpt.Addr,
	)

	// Run blocks until SIGTERM/SIGINT and then drains in-flight tasks.
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
