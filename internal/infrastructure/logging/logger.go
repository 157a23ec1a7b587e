package logging

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config options used in creating zap logger
type Config struct {
	FilePath   string // log file path, stderr when empty
	Level      string // debug, info, warn or error
	Env        string // app environment
	AppID      string // attached to every entry as service.id
	MaxSize    int    // megabytes
	MaxBackups int
	MaxAge     int // days
}

type contextKey struct{}

// NewLogger build a zap logger: colored console output in development,
// ECS flavoured JSON in production
func NewLogger(cfg *Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil || level > zapcore.ErrorLevel {
		return nil, fmt.Errorf("unknown logging level: %q", cfg.Level)
	}

	core := zapcore.NewCore(newEncoder(cfg.Env), newWriteSyncer(cfg), level)
	options := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if cfg.AppID != "" {
		options = append(options, zap.Fields(zap.String("service.id", cfg.AppID)))
	}
	return zap.New(core, options...), nil
}

func newEncoder(env string) zapcore.Encoder {
	if env != "production" {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.CallerKey = "log.origin.file.name"
		return zapcore.NewConsoleEncoder(ec)
	}

	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	ec.TimeKey = "@timestamp"
	ec.MessageKey = "message"
	ec.LevelKey = "log.level"
	ec.CallerKey = "log.origin.file.name"
	ec.StacktraceKey = "error.stack_trace"
	return zapcore.NewJSONEncoder(ec)
}

func newWriteSyncer(cfg *Config) zapcore.WriteSyncer {
	if cfg.FilePath == "" {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
}

// SetLoggerInContext set logger into target context
func SetLoggerInContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// ExtractLoggerFromContext a no-op logger is returned if none was set
func ExtractLoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}
