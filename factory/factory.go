package factory

import (
	"fmt"

	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/internal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewEngineWithConfig builds a sealed columnar store from the given records
// and wires it to a query engine with the provided configuration. This is
// the primary way for external projects to create an Engine instance.
//
// Usage:
//
// import (
//
//	"github.com/lychee-technology/strata"
//	"github.com/lychee-technology/strata/factory"
//
// )
//
// config := strata.DefaultConfig()
// engine, err := factory.NewEngineWithConfig(config, schema, records)
//
//	if err != nil {
//	   // handle error
//	}
func NewEngineWithConfig(config *strata.Config, schema *strata.Schema, records []strata.Record) (strata.Engine, error) {
	if config == nil {
		config = strata.DefaultConfig()
	}

	logger, err := newLogger(config.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger.Info("building columnar store",
		zap.Int("fields", schema.Len()),
		zap.Int("records", len(records)),
	)

	store, err := internal.BuildStore(schema, records, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}

	tracker := internal.NewAdaptiveTracker(config.Adaptive.Enabled)
	return internal.NewQueryEngine(store, tracker, logger), nil
}

// NewEngine builds an engine with the default configuration.
func NewEngine(schema *strata.Schema, records []strata.Record) (strata.Engine, error) {
	return NewEngineWithConfig(nil, schema, records)
}

// newLogger constructs a zap logger from the logging configuration.
func newLogger(cfg strata.LoggingConfig) (*zap.Logger, error) {
	if !cfg.EnableStructured {
		return zap.NewNop(), nil
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
