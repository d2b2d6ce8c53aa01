// Package logging builds the application logger: ectologger for context
// enrichment over a zap core for output.
package logging

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	// Level is the minimum emitted level: debug, info, warn, error.
	Level string
	// Pretty switches to human-readable console output for local runs.
	Pretty bool
}

// New returns the application logger and a flush func for shutdown.
func New(cfg Config) (ectologger.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Pretty {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.DisableCaller = true

	zlog, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	logger := zapadapter.NewZapEctoLogger(zlog, nil)
	flush := func() { _ = zlog.Sync() }
	return logger, flush, nil
}
