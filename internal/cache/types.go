package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by Set after Close
	ErrClosed = errors.New("cache closed")
)

// Handle is a revocable reference to a blob, shaped like a browser object URL.
type Handle string

// Config holds configuration for a BlobCache.
type Config struct {
	Capacity      int64         // Bytes
	MaxAge        time.Duration // Idle time before an entry is swept
	SweepInterval time.Duration // How often the sweeper runs
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:      100 * 1024 * 1024, // 100MB
		MaxAge:        30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Stats holds cache performance metrics.
type Stats struct {
	Capacity int64 // Maximum capacity in bytes
	Size     int64 // Current size in bytes
	Items    int64 // Number of entries

	Hits        int64
	Misses      int64
	Evictions   int64 // entries dropped to make room
	Expirations int64 // entries dropped by the age sweep
	HitRate     float64
}

// EntryInfo describes a cached entry.
type EntryInfo struct {
	Key          Key
	Handle       Handle
	Size         int64
	LastAccessed time.Time
}
