// Package config loads and validates docstream's engine configuration:
// network bind address, staging-buffer byte budget, probabilistic-index
// admission rate, dictionary-training threshold, and the directory used
// for persisted sidecar files.
package config

import (
	"os"

	dserrors "github.com/standardbeagle/docstream/internal/errors"
)

// Tunable defaults, named as exported constants so both code and
// config-file parsing can reference the same default.
const (
	DefaultBindAddr                = "127.0.0.1:7999"
	DefaultStagingByteBudget int64 = 8 * 1024 * 1024 // 8MiB staging buffer
	// Rationale: keeps the RAM-resident tail of the corpus large enough
	// that most interactive queries never touch disk, without holding
	// an unbounded amount of recent traffic in memory.
	DefaultAdmissionP                  = 0.6
	DefaultDictionaryThresholdBytes    = 32 * 1024 * 1024 // 32MiB
	DefaultCommandChannelCapacity      = 1024
	DefaultMetricsIntervalMs           = 100
	DefaultPersistDir                  = "."
	DefaultQueryDeadlineMs             = 1000
	DefaultQueryLimit                  = 100
)

// Config is the root configuration object: Load starts from the
// defaults and merges a KDL file over them, and Validate then rejects
// out-of-range values.
type Config struct {
	Version     int
	Network     Network
	Staging     Staging
	Store       Store
	Performance Performance
	Persist     Persist
	Query       Query
}

// Network configures the TCP ingestion listener (C5).
type Network struct {
	BindAddr string
}

// Staging configures the in-memory staging buffer (C3).
type Staging struct {
	ByteBudget    int64
	SortPointer   string // JSON pointer used to derive SortKey; empty = random key
}

// Store configures the probabilistic index's admission rate and the
// document store's dictionary-compression threshold (C1, C2).
type Store struct {
	AdmissionP               float64
	DictionaryThresholdBytes int64
}

// Performance configures channel capacities and the metrics cadence.
type Performance struct {
	CommandChannelCapacity int
	MetricsIntervalMs      int
}

// Persist configures where the C7 sidecar files live.
type Persist struct {
	Dir string
}

// Query holds a default deadline and result limit for Filter commands.
// They are loaded and validated; the Filter path does not read them.
type Query struct {
	DefaultDeadlineMs int
	DefaultLimit      int
}

// defaultConfig returns a Config populated entirely from the constants
// above; Load starts here and layers a KDL file on top when present.
func defaultConfig() *Config {
	return &Config{
		Version: 1,
		Network: Network{BindAddr: DefaultBindAddr},
		Staging: Staging{ByteBudget: DefaultStagingByteBudget},
		Store: Store{
			AdmissionP:               DefaultAdmissionP,
			DictionaryThresholdBytes: DefaultDictionaryThresholdBytes,
		},
		Performance: Performance{
			CommandChannelCapacity: DefaultCommandChannelCapacity,
			MetricsIntervalMs:      DefaultMetricsIntervalMs,
		},
		Persist: Persist{Dir: DefaultPersistDir},
		Query: Query{
			DefaultDeadlineMs: DefaultQueryDeadlineMs,
			DefaultLimit:      DefaultQueryLimit,
		},
	}
}

// Load reads the KDL config file at path, merging it over the defaults.
// A missing file is not an error: Load returns the defaults. Any other
// read or parse error is returned so the caller can log it once and
// continue with defaults (per spec's C7 "non-fatal, log once" rule).
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return cfg, dserrors.NewConfigError("path", path, err)
	}

	if err := mergeKDL(cfg, string(content)); err != nil {
		return cfg, dserrors.NewConfigError("kdl", path, err)
	}

	return cfg, nil
}
