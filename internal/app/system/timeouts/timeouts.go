// Package timeouts provides centralized timeout values for store and
// outbound HTTP operations.
//
// Values are used with context.WithTimeout. Configure is called once from
// bootstrap; until then the defaults apply.
//
// Guidelines:
//   - Ping: health checks and connectivity verification
//   - Short: single-document reads and upserts
//   - Medium: conditional updates that may retry (period CAS, group join)
//   - Long: index reconciliation and multi-collection work
//   - Batch: one chunk of a bulk write (membership backfill)
//   - Outbound: one call to the messaging platform or places API
package timeouts

import (
	"sync"
	"time"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing     = 2 * time.Second
	DefaultShort    = 5 * time.Second
	DefaultMedium   = 10 * time.Second
	DefaultLong     = 30 * time.Second
	DefaultBatch    = 60 * time.Second
	DefaultOutbound = 8 * time.Second
)

// Config holds timeout configuration values.
// Zero values are ignored (current values are kept).
type Config struct {
	Ping     time.Duration
	Short    time.Duration
	Medium   time.Duration
	Long     time.Duration
	Batch    time.Duration
	Outbound time.Duration
}

func defaults() Config {
	return Config{
		Ping:     DefaultPing,
		Short:    DefaultShort,
		Medium:   DefaultMedium,
		Long:     DefaultLong,
		Batch:    DefaultBatch,
		Outbound: DefaultOutbound,
	}
}

var (
	mu  sync.RWMutex
	cur = defaults()
)

func get(pick func(Config) time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return pick(cur)
}

// Ping returns the timeout for health checks.
func Ping() time.Duration { return get(func(c Config) time.Duration { return c.Ping }) }

// Short returns the timeout for single-document reads and writes.
func Short() time.Duration { return get(func(c Config) time.Duration { return c.Short }) }

// Medium returns the timeout for conditional updates with retries.
func Medium() time.Duration { return get(func(c Config) time.Duration { return c.Medium }) }

// Long returns the timeout for schema work and multi-collection operations.
func Long() time.Duration { return get(func(c Config) time.Duration { return c.Long }) }

// Batch returns the timeout for a single bulk-write chunk.
func Batch() time.Duration { return get(func(c Config) time.Duration { return c.Batch }) }

// Outbound returns the timeout for one outbound HTTP call.
func Outbound() time.Duration { return get(func(c Config) time.Duration { return c.Outbound }) }

// Configure sets custom timeout values. Zero values in cfg are ignored.
// Call during startup before handlers are registered.
//
// Example:
//
//	timeouts.Configure(timeouts.Config{
//	    Outbound: 5 * time.Second,
//	})
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		cur.Ping = cfg.Ping
	}
	if cfg.Short > 0 {
		cur.Short = cfg.Short
	}
	if cfg.Medium > 0 {
		cur.Medium = cfg.Medium
	}
	if cfg.Long > 0 {
		cur.Long = cfg.Long
	}
	if cfg.Batch > 0 {
		cur.Batch = cfg.Batch
	}
	if cfg.Outbound > 0 {
		cur.Outbound = cfg.Outbound
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cur = defaults()
}

// Current returns the current timeout configuration, for startup logging.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}
