package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold 超过该耗时的 SQL 以 warn 级别记录。
const slowQueryThreshold = 200 * time.Millisecond

// GormLogger 把 gorm 的日志输出到 zap。
type GormLogger struct {
	zap   *zap.Logger
	level gormlogger.LogLevel
}

// NewGormLogger 构造 gorm 日志适配器。
func NewGormLogger(l *zap.Logger, level gormlogger.LogLevel) GormLogger {
	return GormLogger{zap: l.WithOptions(zap.AddCallerSkip(3)), level: level}
}

func (l GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	l.level = level
	return l
}

func (l GormLogger) Info(_ context.Context, s string, args ...any) {
	if l.level >= gormlogger.Info {
		l.zap.Sugar().Infof(s, args...)
	}
}

func (l GormLogger) Warn(_ context.Context, s string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.zap.Sugar().Warnf(s, args...)
	}
}

func (l GormLogger) Error(_ context.Context, s string, args ...any) {
	if l.level >= gormlogger.Error {
		l.zap.Sugar().Errorf(s, args...)
	}
}

func (l GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	sql, rows := fc()
	dur := time.Since(begin)
	fields := []zap.Field{zap.Duration("duration", dur), zap.Int64("rows", rows), zap.String("sql", sql)}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.zap.Error("gorm query error", append(fields, zap.Error(err))...)
	case dur > slowQueryThreshold && l.level >= gormlogger.Warn:
		l.zap.Warn("gorm slow query", fields...)
	case l.level >= gormlogger.Info:
		l.zap.Debug("gorm query", fields...)
	}
}
