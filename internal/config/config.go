// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers defaults, an optional YAML file, and environment variables.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// SyncMaxRetries caps replay attempts per offline action before it is
	// dead-lettered.
	SyncMaxRetries int `koanf:"sync_max_retries"`

	// SyncFlushIntervalMS sets how often the background worker tries to
	// drain the offline queue.
	SyncFlushIntervalMS int `koanf:"sync_flush_interval_ms"`

	// DedupeSize sets the size of the vote idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount configures the number of shards in the document store.
	ShardCount int `koanf:"shard_count"`

	// AttemptTimerSec is the per-attempt countdown in seconds.
	AttemptTimerSec int `koanf:"attempt_timer_sec"`

	// BreakTimerSec is the default break countdown in seconds.
	BreakTimerSec int `koanf:"break_timer_sec"`

	// JudgesPerPlatform sets the lay-judge panel size.
	JudgesPerPlatform int `koanf:"judges_per_platform"`

	// PrimaryFormula orders the leaderboard: wilks, ipf, dots or sinclair.
	PrimaryFormula string `koanf:"primary_formula"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use and currently
// unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		SyncMaxRetries:      3,
		SyncFlushIntervalMS: 15_000,
		DedupeSize:          100_000,
		ShardCount:          8,
		AttemptTimerSec:     60,
		BreakTimerSec:       600,
		JudgesPerPlatform:   3,
		PrimaryFormula:      "ipf",
		MaxLeaderboardLimit: 100,
	}
}
