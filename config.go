package strata

import (
	"time"
)

// Config consolidates engine settings. Per-query settings are derived from
// Execution and Adaptive via QueryOptions and passed by value into every
// execution.
type Config struct {
	Execution ExecutionConfig `json:"execution"`
	Adaptive  AdaptiveConfig  `json:"adaptive"`
	Build     BuildConfig     `json:"build"`
	Logging   LoggingConfig   `json:"logging"`
}

// ExecutionConfig contains query execution settings
type ExecutionConfig struct {
	EnableParallel          bool          `json:"enableParallel"`
	ParallelChunkRows       int           `json:"parallelChunkRows"`
	UseLogicalPlanExecution bool          `json:"useLogicalPlanExecution"`
	DefaultTimeout          time.Duration `json:"defaultTimeout"`
	MaxWorkers              int           `json:"maxWorkers"` // not read; parallel workers are capped at GOMAXPROCS
}

// AdaptiveConfig contains adaptive executor settings
type AdaptiveConfig struct {
	Enabled               bool `json:"enabled"`
	HistorySize           int  `json:"historySize"`
	MinSamplesPerStrategy int  `json:"minSamplesPerStrategy"`
}

// BuildConfig contains store build settings
type BuildConfig struct {
	DictionaryMinRows      int     `json:"dictionaryMinRows"`
	DictionaryMaxRatio     float64 `json:"dictionaryMaxRatio"`
	DictionaryMinThreshold int     `json:"dictionaryMinThreshold"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level            string `json:"level"`
	Format           string `json:"format"`
	EnableStructured bool   `json:"enableStructured"`
	LogQueries       bool   `json:"logQueries"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Execution: ExecutionConfig{
			EnableParallel:          false,
			ParallelChunkRows:       65536,
			UseLogicalPlanExecution: true,
			DefaultTimeout:          30 * time.Second,
		},
		Adaptive: AdaptiveConfig{
			Enabled:               false,
			HistorySize:           100,
			MinSamplesPerStrategy: 3,
		},
		Build: BuildConfig{
			DictionaryMinRows:      100,
			DictionaryMaxRatio:     0.1,
			DictionaryMinThreshold: 16,
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "console",
			EnableStructured: true,
		},
	}
}

// QueryOptions derives per-query options from the configured defaults.
func (c *Config) QueryOptions() QueryOptions {
	return QueryOptions{
		EnableParallel:          c.Execution.EnableParallel,
		ParallelChunkRows:       c.Execution.ParallelChunkRows,
		UseLogicalPlanExecution: c.Execution.UseLogicalPlanExecution,
		UseAdaptiveExecution:    c.Adaptive.Enabled,
	}
}
