// Package logger 基于 zap 构建进程日志，并以 *slog.Logger 形式提供给业务代码。
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Init 根据级别与格式（json、console）创建 zap logger。
func Init(level, format string) (*zap.Logger, error) {
	lvl := zap.InfoLevel
	if err := lvl.Set(strings.ToLower(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.MessageKey = "message"
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encoderCfg)
	case "console":
		enc = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

// Slog 把 zap core 包装为 slog.Logger，并附带服务名。
func Slog(l *zap.Logger, service string) *slog.Logger {
	handler := zapslog.NewHandler(l.Core(), zapslog.WithCaller(true))
	return slog.New(handler).With(slog.String("service", service))
}

// MustSetup 初始化 zap 与 slog，并把 slog 设置为默认 logger。
// 返回的函数用于在退出前刷新缓冲。
func MustSetup(level, format, service string) (*zap.Logger, *slog.Logger, func()) {
	zl, err := Init(level, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	sl := Slog(zl, service)
	slog.SetDefault(sl)
	return zl, sl, func() { _ = zl.Sync() }
}

// Nop 返回丢弃所有输出的 slog.Logger，供测试使用。
func Nop() *slog.Logger {
	return slog.New(zapslog.NewHandler(zapcore.NewNopCore()))
}
