package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func buildConfig(debugMode bool) zap.Config {
	config := zap.NewProductionConfig()

	if debugMode {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	config.Encoding = "json"
	config.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	config.DisableStacktrace = false

	return config
}

// NewProductionLogger creates a production-ready JSON logger that additionally
// tees every record into a bounded in-memory ring, returned alongside the
// logger for diagnostic queries. The ring is best-effort and process-lifetime
// only; the JSON stream remains the authoritative log output.
func NewProductionLogger(debugMode bool) (*zap.Logger, *Ring, error) {
	config := buildConfig(debugMode)

	ring := NewRing(DefaultRingCapacity)
	zl, err := config.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, newRingCore(ring, config.Level))
	}))
	if err != nil {
		return nil, nil, err
	}
	return zl, ring, nil
}

// NewDevelopmentLogger creates a console logger for local development.
func NewDevelopmentLogger(debugMode bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()

	if debugMode {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return config.Build()
}

// Sync flushes any buffered log entries. Safe to call multiple times.
func Sync(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}
