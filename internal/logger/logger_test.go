package logger

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestInit_RejectsUnknownSettings(t *testing.T) {
	_, err := Init("loud", "json")
	require.Error(t, err)

	_, err = Init("info", "xml")
	require.Error(t, err)

	l, err := Init("debug", "console")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestSlog_WritesThroughZapCore(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sl := Slog(zap.New(core), "api")

	sl.Info("resume created", slog.String("slug", "alice-backend-developer"))
	sl.Debug("dropped")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "resume created", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "api", fields["service"])
	assert.Equal(t, "alice-backend-developer", fields["slug"])
}

func TestGormLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(context.Background(), time.Now(), sql, nil)
	assert.Equal(t, 0, logs.Len())

	gl.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	gl.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "gorm query error", logs.All()[0].Message)

	gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "gorm slow query", logs.All()[1].Message)

	silent := gl.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	assert.Equal(t, 2, logs.Len())
}
