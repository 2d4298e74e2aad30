package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/AlexanderCholiy/resume-safari/internal/config"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/logger"
	"github.com/AlexanderCholiy/resume-safari/internal/metrics"
	"github.com/AlexanderCholiy/resume-safari/internal/resume"
	"github.com/AlexanderCholiy/resume-safari/internal/snapshot"
	"github.com/AlexanderCholiy/resume-safari/internal/tasks"
	"github.com/AlexanderCholiy/resume-safari/internal/worker"
)

func main() {
	cfg := config.MustLoad()
	zl, log, sync := logger.MustSetup(cfg.Log.Level, cfg.Log.Format, "worker")
	defer sync()

	ctx := context.Background()

	db, err := database.InitDatabase(ctx, cfg.Database, zl)
	if err != nil {
		log.Error("init database", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("database connection ready for worker")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("ping redis", slog.Any("error", err))
		os.Exit(1)
	}

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      zl.Sugar(),
	})

	// worker 只读简历，不触发新的快照任务。
	resumes := resume.NewService(db, cfg.Limits, nil, log)
	handler := worker.NewSnapshotTaskHandler(
		resumes,
		snapshot.NewCache(redisClient, cfg.Worker.SnapshotTTL),
		redisClient,
		cfg.Limits.GridMaxRows,
		cfg.Limits.GridMaxCols,
		log,
	)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeResumeSnapshot, handler)

	log.Info("worker service started",
		slog.String("redis_addr", cfg.Redis.Addr()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		log.Error("worker server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
