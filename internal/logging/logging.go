// Package logging constructs the process-wide *zap.Logger. Every component
// takes a logger via constructor injection rather than reaching for a
// package-level global, matching the teacher's zap.NewProduction() wiring in
// cmd/control-plane/main.go.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger for the given level name (any name zapcore
// accepts, e.g. "debug", "info", "warn", "error"; an unrecognized name falls
// back to "info"). Production encoding
// (JSON) is always used — sitewatch has no interactive/development mode.
func New(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Nop returns a logger that discards everything, used as the default for
// components constructed without an explicit logger so unit tests don't
// need to wire one.
func Nop() *zap.Logger {
	return zap.NewNop()
}
