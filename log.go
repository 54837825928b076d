package collabsync

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newDefaultLogger builds the process-wide fallback logger used when an
// Engine is constructed without an explicit *zap.Logger, following the
// production config used across the rest of this stack: ISO8601 timestamps,
// short caller.
func newDefaultLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
