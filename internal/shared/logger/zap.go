package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/storefront/server/internal/utils/requestctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapLogger builds the structured logger used by the domain modules.
// It honours the same level, format and service settings as New.
func NewZapLogger(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var zcfg zap.Config
	if strings.EqualFold(cfg.Format, "text") {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "time"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel(parseLevel(cfg.Level)))
	if cfg.Service != "" {
		zcfg.InitialFields = map[string]any{"service": cfg.Service}
	}

	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return log, nil
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level <= slog.LevelDebug:
		return zapcore.DebugLevel
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// For returns log enriched with the request id and caller stored in ctx by
// the HTTP middleware. Background work without those values gets log back.
func For(ctx context.Context, log *zap.Logger) *zap.Logger {
	var fields []zap.Field
	if id := requestctx.RequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if actor, ok := requestctx.ActorFrom(ctx); ok {
		fields = append(fields, zap.Stringer("actor_id", actor.UserID))
		if actor.Admin {
			fields = append(fields, zap.Bool("actor_admin", true))
		}
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}
