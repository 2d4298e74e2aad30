package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/errcode"
	"github.com/AlexanderCholiy/resume-safari/internal/metrics"
	"github.com/AlexanderCholiy/resume-safari/internal/resume"
	"github.com/AlexanderCholiy/resume-safari/internal/snapshot"
	"github.com/AlexanderCholiy/resume-safari/internal/tasks"
)

// Notifier 是发布用户通知所需的 Redis 命令子集。
type Notifier interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// ResumeLoader 按主键读取带技能放置的简历。
type ResumeLoader interface {
	GetByID(ctx context.Context, id uint) (*database.Resume, error)
}

// SnapshotTaskHandler 负责消费网格快照任务。
type SnapshotTaskHandler struct {
	resumes  ResumeLoader
	cache    *snapshot.Cache
	notifier Notifier
	maxRows  int
	maxCols  int
	logger   *slog.Logger
}

// NewSnapshotTaskHandler 创建任务处理器。
func NewSnapshotTaskHandler(
	resumes ResumeLoader,
	cache *snapshot.Cache,
	notifier Notifier,
	maxRows, maxCols int,
	logger *slog.Logger,
) *SnapshotTaskHandler {
	return &SnapshotTaskHandler{
		resumes:  resumes,
		cache:    cache,
		notifier: notifier,
		maxRows:  maxRows,
		maxCols:  maxCols,
		logger:   logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *SnapshotTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.ResumeSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("unmarshal snapshot payload: %v: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("resume_id", uint64(payload.ResumeID)),
	)
	log.Info("building resume grid snapshot")

	r, err := h.resumes.GetByID(ctx, payload.ResumeID)
	if apperr.Is(err, apperr.KindNotFound) {
		log.Warn("resume not found, skipping task")
		return nil
	}
	if err != nil {
		log.Error("query resume failed", slog.Any("error", err))
		return err
	}

	log = log.With(slog.Uint64("user_id", uint64(r.UserID)), slog.String("slug", r.Slug))

	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		notify := SnapshotNotifyMessage{
			Status:        "error",
			ResumeID:      r.ID,
			Slug:          r.Slug,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publish(ctx, r.UserID, notify); err != nil {
			log.Error("publish snapshot error notification failed", slog.Any("error", err))
		}
	}()

	notify := SnapshotNotifyMessage{
		Status:        "completed",
		ResumeID:      r.ID,
		Slug:          r.Slug,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}

	if !r.IsPublished {
		log.Info("resume is not published, snapshot skipped")
		notify.Status = "skipped"
		notify.ErrorCode = errcode.ResumeMissing
		notify.ErrorMessage = "resume is not published"
	} else {
		grids := resume.BuildGrids(r, h.maxRows, h.maxCols)
		if err := h.cache.Set(ctx, grids); err != nil {
			log.Error("store grid snapshot failed", slog.Any("error", err))
			return err
		}
		metrics.GridBuilds.WithLabelValues("worker").Inc()
	}

	if err := h.publish(ctx, r.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("resume grid snapshot task completed", slog.String("status", notify.Status))
	return nil
}

func (h *SnapshotTaskHandler) publish(ctx context.Context, userID uint, notify SnapshotNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(userID)
	if err := h.notifier.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
