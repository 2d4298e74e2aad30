package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AlexanderCholiy/resume-safari/internal/config"
	"github.com/AlexanderCholiy/resume-safari/internal/logger"
)

const (
	openMaxRetries = 5
	openRetryDelay = 500 * time.Millisecond
	openMaxDelay   = 5 * time.Second
)

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
// 连接失败时按指数退避重试。
func InitDatabase(ctx context.Context, cfg config.DatabaseConfig, zl *zap.Logger) (*gorm.DB, error) {
	gormCfg := NewGormConfig(zl, gormlogger.Warn)

	var (
		db  *gorm.DB
		err error
	)
	for attempt := 0; ; attempt++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
		if err == nil {
			break
		}
		if attempt >= openMaxRetries {
			return nil, fmt.Errorf("open database after %d attempts: %w", attempt+1, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("open database canceled: %w", ctx.Err())
		case <-time.After(retryDelay(attempt)):
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := SetupJoinTables(db); err != nil {
		return nil, err
	}

	return db, nil
}

// NewGormConfig 返回统一的 gorm 配置：翻译驱动错误并把日志输出到 zap。
func NewGormConfig(zl *zap.Logger, level gormlogger.LogLevel) *gorm.Config {
	cfg := &gorm.Config{TranslateError: true}
	if zl != nil {
		cfg.Logger = logger.NewGormLogger(zl, level)
	} else {
		cfg.Logger = gormlogger.Discard
	}
	return cfg
}

func retryDelay(attempt int) time.Duration {
	d := openRetryDelay << attempt
	if d > openMaxDelay {
		return openMaxDelay
	}
	return d
}
