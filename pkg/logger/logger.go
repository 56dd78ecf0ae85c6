package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the application logger for the given environment.
// "local" gets a human-readable development logger at debug level,
// everything else gets the JSON production logger at info level.
func New(env string) *zap.Logger {
	var cfg zap.Config

	switch env {
	case "local":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	log, err := cfg.Build()
	if err != nil {
		// A broken logger config leaves us nothing to log with, so panic.
		panic("failed to build logger: " + err.Error())
	}

	return log
}
