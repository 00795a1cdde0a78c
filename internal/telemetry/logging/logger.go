// Package logging wraps go.uber.org/zap the way the teacher's
// services/identity-service/logging package does: a small interface with
// context-aware variants so callers don't thread *zap.Logger everywhere,
// plus an optional JSON log file with rotation via lumberjack.
package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const (
	TenantIDKey     ctxKey = "tenant_id"
	UserIDKey       ctxKey = "user_id"
	RegionCodeKey   ctxKey = "region_code"
	AssessmentIDKey ctxKey = "assessment_id"
)

// Config controls logger construction. Zero value is a sane development
// default (console, info level, no file output).
type Config struct {
	ServiceName string
	Environment string
	Level       zapcore.Level
	JSONFormat  bool
	FilePath    string // empty disables file output
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

// Logger is the façade used across every component.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger per Config.
func New(cfg Config) (*Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.JSONFormat {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	level := cfg.Level
	if level == 0 {
		level = zapcore.InfoLevel
	}

	var cores []zapcore.Core
	cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))

	if cfg.FilePath != "" {
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), writer, level))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).With(
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
	)

	return &Logger{z: z}, nil
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func extractFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if v, ok := ctx.Value(TenantIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("tenant_id", v))
	}
	if v, ok := ctx.Value(UserIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("user_id", v))
	}
	if v, ok := ctx.Value(RegionCodeKey).(string); ok && v != "" {
		fields = append(fields, zap.String("region_code", v))
	}
	if v, ok := ctx.Value(AssessmentIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("assessment_id", v))
	}
	return fields
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

func (l *Logger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.z.Debug(msg, append(fields, extractFields(ctx)...)...)
}
func (l *Logger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.z.Info(msg, append(fields, extractFields(ctx)...)...)
}
func (l *Logger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.z.Warn(msg, append(fields, extractFields(ctx)...)...)
}
func (l *Logger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.z.Error(msg, append(fields, extractFields(ctx)...)...)
}

// With returns a child logger carrying extra fields on every call.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Sync flushes buffered log entries; call on shutdown.
func (l *Logger) Sync() error { return l.z.Sync() }
