// Package snapshot 在 Redis 中缓存已发布简历的技能网格，并在简历变更后排队重建。
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/logger"
	"github.com/AlexanderCholiy/resume-safari/internal/resume"
	"github.com/AlexanderCholiy/resume-safari/internal/tasks"
)

const keyPrefix = "resume:grid:"

// Key 返回 slug 对应的缓存键。
func Key(slug string) string { return keyPrefix + slug }

// KV 是缓存用到的 Redis 命令子集。
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache 保存网格快照，只缓存已发布的简历。
type Cache struct {
	kv  KV
	ttl time.Duration
}

// NewCache 构造快照缓存。
func NewCache(kv KV, ttl time.Duration) *Cache {
	return &Cache{kv: kv, ttl: ttl}
}

// Get 读取快照，未命中时 ok 为 false。
func (c *Cache) Get(ctx context.Context, slug string) (resume.Grids, bool, error) {
	var g resume.Grids
	raw, err := c.kv.Get(ctx, Key(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return g, false, nil
	}
	if err != nil {
		return g, false, fmt.Errorf("get grid snapshot %q: %w", slug, err)
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return g, false, fmt.Errorf("decode grid snapshot %q: %w", slug, err)
	}
	return g, true, nil
}

// Set 写入快照。
func (c *Cache) Set(ctx context.Context, g resume.Grids) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode grid snapshot: %w", err)
	}
	if err := c.kv.Set(ctx, Key(g.Slug), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set grid snapshot %q: %w", g.Slug, err)
	}
	return nil
}

// Invalidate 删除给定 slug 的快照，空 slug 被忽略。
func (c *Cache) Invalidate(ctx context.Context, slugs ...string) error {
	keys := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if s != "" {
			keys = append(keys, Key(s))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.kv.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate grid snapshots: %w", err)
	}
	return nil
}

// Enqueuer 是 asynq.Client 的子集。
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler 在简历提交后失效旧快照，并为已发布的简历排队重建。
// 失败只记录日志，不影响写请求。
type Scheduler struct {
	cache  *Cache
	queue  Enqueuer
	logger *slog.Logger
}

// NewScheduler 构造调度器。
func NewScheduler(cache *Cache, queue Enqueuer, logger *slog.Logger) *Scheduler {
	return &Scheduler{cache: cache, queue: queue, logger: logger}
}

// ResumeSaved 实现 resume.Publisher。
func (s *Scheduler) ResumeSaved(ctx context.Context, r *database.Resume, previousSlug string) {
	log := s.logger.With(
		slog.Uint64("resume_id", uint64(r.ID)),
		slog.String("slug", r.Slug),
	)
	slugs := []string{r.Slug}
	if previousSlug != r.Slug {
		slugs = append(slugs, previousSlug)
	}
	if err := s.cache.Invalidate(ctx, slugs...); err != nil {
		log.WarnContext(ctx, "invalidate grid snapshot failed", slog.Any("error", err))
	}
	if !r.IsPublished {
		return
	}

	correlationID := logger.CorrelationID(ctx)
	task, err := tasks.NewResumeSnapshotTask(r.ID, correlationID)
	if err != nil {
		log.ErrorContext(ctx, "build snapshot task failed", slog.Any("error", err))
		return
	}
	if _, err := s.queue.EnqueueContext(ctx, task); err != nil {
		log.ErrorContext(ctx, "enqueue snapshot task failed", slog.Any("error", err))
		return
	}
	log.InfoContext(ctx, "snapshot task enqueued", slog.String("correlation_id", correlationID))
}

// ResumeDeleted 实现 resume.Publisher。
func (s *Scheduler) ResumeDeleted(ctx context.Context, r *database.Resume) {
	if err := s.cache.Invalidate(ctx, r.Slug); err != nil {
		s.logger.WarnContext(ctx, "invalidate grid snapshot failed",
			slog.String("slug", r.Slug),
			slog.Any("error", err),
		)
	}
}
