// Package logging constructs the zap.Logger every other package accepts,
// so an embedder configures logging once instead of each component picking
// its own defaults.
package logging

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a yaml-friendly wrapper around zapcore.Level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) zapLevel() (zapcore.Level, error) {
	switch l {
	case "", LevelInfo:
		return zapcore.InfoLevel, nil
	case LevelDebug:
		return zapcore.DebugLevel, nil
	case LevelWarn:
		return zapcore.WarnLevel, nil
	case LevelError:
		return zapcore.ErrorLevel, nil
	default:
		return 0, errors.Newf("logging: unknown level %q", l)
	}
}

// Config selects the logger's verbosity and encoding.
type Config struct {
	Level Level `yaml:"level"`
	// JSON selects structured JSON output; the default, console encoding, is
	// meant for interactive use (e.g. the cmd/kitepage CLI).
	JSON bool `yaml:"json"`
}

// New builds a *zap.Logger from cfg. A zero Config produces an info-level
// console logger.
func New(cfg Config) (*zap.Logger, error) {
	level, err := cfg.Level.zapLevel()
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.JSON {
		zapCfg.Encoding = "json"
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "logging: build logger")
	}
	return logger, nil
}
