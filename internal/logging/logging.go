// Package logging builds the process-wide zap logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger. In production mode it emits JSON at info level;
// otherwise it emits the human-readable console encoder at debug level,
// for interactive runs.
func New(production bool) *zap.Logger {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		// zap construction failure means stderr itself is unusable; fall
		// back to a no-op logger rather than panic the daemon.
		return zap.NewNop()
	}
	return logger
}

// NewFromEnv picks production vs development mode from REMEDIATOR_ENV.
func NewFromEnv() *zap.Logger {
	return New(os.Getenv("REMEDIATOR_ENV") == "production")
}
