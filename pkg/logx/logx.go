package logx

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var lg *zap.SugaredLogger

// Init builds the process logger. LOG_LEVEL selects the level and SERVICE_NAME
// is attached to every entry.
func Init() {
	level := zapcore.InfoLevel
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	if svc := os.Getenv("SERVICE_NAME"); svc != "" {
		z = z.With(zap.String("service", svc))
	}
	lg = z.Sugar()
}

// Set replaces the process logger; tests use it with zap.NewNop().
func Set(l *zap.SugaredLogger) { lg = l }

func L() *zap.SugaredLogger {
	if lg == nil {
		Init()
	}
	return lg
}

func Sync() { _ = L().Sync() }
