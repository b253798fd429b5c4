// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger 是全局的基础 logger 实例。
// 各服务在启动时通过 Init 设置 service 字段。
var Logger zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 初始化全局 logger，附加服务名。
// level 为空时默认为 info。
func Init(serviceName string) {
	Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		Logger = Logger.Level(lvl)
	} else {
		Logger = Logger.Level(zerolog.InfoLevel)
	}
}

// Ctx 返回一个附加了当前追踪上下文 (trace_id/span_id) 的 logger。
// 这样日志可以和 Jaeger 中的 trace 相互关联。
func Ctx(ctx context.Context) *zerolog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return &Logger
	}
	l := Logger.With().
		Str("trace_id", spanCtx.TraceID().String()).
		Str("span_id", spanCtx.SpanID().String()).
		Logger()
	return &l
}
