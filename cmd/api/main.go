package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/AlexanderCholiy/resume-safari/internal/api"
	"github.com/AlexanderCholiy/resume-safari/internal/auth"
	"github.com/AlexanderCholiy/resume-safari/internal/config"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/logger"
	"github.com/AlexanderCholiy/resume-safari/internal/profile"
	"github.com/AlexanderCholiy/resume-safari/internal/resume"
	"github.com/AlexanderCholiy/resume-safari/internal/snapshot"
	"github.com/AlexanderCholiy/resume-safari/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.MustLoad()
	zl, log, sync := logger.MustSetup(cfg.Log.Level, cfg.Log.Format, "api")
	defer sync()

	ctx := context.Background()

	db, err := database.InitDatabase(ctx, cfg.Database, zl)
	if err != nil {
		fatal(log, "init database", err)
	}
	if err := database.Migrate(db); err != nil {
		fatal(log, "migrate database", err)
	}
	log.Info("database ready", slog.String("host", cfg.Database.Host), slog.String("db", cfg.Database.Name))

	authService, err := auth.NewAuthServiceFromConfig(cfg.Auth)
	if err != nil {
		fatal(log, "init auth service", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		fatal(log, "ping redis", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	storageClient, err := storage.NewClient(ctx, cfg.MinIO)
	if err != nil {
		fatal(log, "init storage client", err)
	}

	var scanner api.VirusScanner
	if cfg.Clamd.Addr != "" {
		scanner = api.ClamdScanner{Addr: cfg.Clamd.Addr}
	} else {
		log.Warn("clamd address not configured, avatar uploads are not scanned")
	}

	cache := snapshot.NewCache(redisClient, cfg.Worker.SnapshotTTL)
	scheduler := snapshot.NewScheduler(cache, asynqClient, log)

	router := api.NewRouter(log, cfg.API.InternalSecret)
	api.RegisterRoutes(router, api.Dependencies{
		Config:    cfg,
		DB:        db,
		Auth:      authService,
		Sessions:  redisClient,
		Notify:    api.RedisNotifySubscriber{Client: redisClient},
		Resumes:   resume.NewService(db, cfg.Limits, scheduler, log),
		Profiles:  profile.NewService(db, cfg.Limits.MaxEducationAndExperience),
		Snapshots: cache,
		Avatars:   storageClient,
		Scanner:   scanner,
		Logger:    log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", slog.Any("error", err))
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, slog.Any("error", err))
	os.Exit(1)
}
