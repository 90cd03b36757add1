// Package logger builds the service ectologger over a zap sink.
package logger

import (
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/clover/config"
)

// New returns the service logger and the underlying zap logger so main
// can flush it on shutdown.
func New(cfg config.Config) (ectologger.Logger, *zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zl, err := zapCfg.Build(zap.WithCaller(false))
	if err != nil {
		return nil, nil, err
	}

	// ectologger hands each structured entry to the sink; zap owns the
	// encoding and output.
	sink := func(msg ectologger.EctoLogMessage) {
		b, err := json.Marshal(msg)
		if err != nil {
			zl.Warn("failed to encode log entry")
			return
		}
		zl.Info(string(b))
	}

	return ectologger.NewEctoLogger(sink), zl, nil
}
