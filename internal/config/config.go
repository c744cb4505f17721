// Package config holds the flat set of settings every other package needs
// to construct itself. Loading from the environment mirrors the teacher's
// internal/config package; the env var names and precedence rules are
// deliberately unopinionated since full config/env loading is out of scope
// for this module (spec §1) — Load() exists so the rest of the engine has
// something concrete to wire against.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the paths and tunables the indexing engine needs.
type Config struct {
	OutputRoot string // e.g. /data/output
	InputRoot  string // e.g. /data/input

	// IndexDir is relative to OutputRoot; holds assets.sqlite, custom_roots.json, collections/.
	IndexDir string

	PoolSize int // store connection pool size, default 8

	StatementTimeout time.Duration // per-statement deadline, default 5s
	BusyTimeoutMS    int           // sqlite busy_timeout pragma, default 5000

	ExtractConcurrency int // bound on concurrent probe invocations, default 4
	ProbeTimeout       time.Duration

	WatcherDebounce    time.Duration // per-path debounce window, default 1s
	WatcherSettleDelay time.Duration // delay before indexing a created file, default 500ms

	ScanThrottle time.Duration // min interval between background scans of the same (source,root,dir), default 10s
}

// Load reads configuration from the environment, applying the same defaults
// the teacher's config.Load uses (getEnv*/getEnvDuration helpers).
func Load() *Config {
	return &Config{
		OutputRoot:         os.Getenv("MJR_OUTPUT_ROOT"),
		InputRoot:          os.Getenv("MJR_INPUT_ROOT"),
		IndexDir:           getEnv("MJR_INDEX_DIR", "_mjr_index"),
		PoolSize:           getEnvInt("MJR_POOL_SIZE", 8),
		StatementTimeout:   getEnvDuration("MJR_STATEMENT_TIMEOUT", 5*time.Second),
		BusyTimeoutMS:      getEnvInt("MJR_BUSY_TIMEOUT_MS", 5000),
		ExtractConcurrency: getEnvInt("MJR_EXTRACT_CONCURRENCY", 4),
		ProbeTimeout:       getEnvDuration("MJR_PROBE_TIMEOUT", 20*time.Second),
		WatcherDebounce:    getEnvDuration("MJR_WATCHER_DEBOUNCE", 1*time.Second),
		WatcherSettleDelay: getEnvDuration("MJR_WATCHER_SETTLE", 500*time.Millisecond),
		ScanThrottle:       getEnvDuration("MJR_SCAN_THROTTLE", 10*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
