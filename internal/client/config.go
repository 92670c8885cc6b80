package client

import (
	"fmt"
	"time"
)

type Config struct {
	// ChunkSize caps keys per bulk backend call. Values between 64 and
	// 1024 work well; larger chunks save round-trips, smaller chunks
	// spread load.
	ChunkSize int
	// MaxConnsPerNode bounds pooled connections per backend node.
	MaxConnsPerNode int
	// MaxInflight caps concurrently dispatched chunks across all nodes.
	// Zero disables the global cap.
	MaxInflight int64
	// Workers is the scheduler's dispatch concurrency.
	Workers int
	// AgingThreshold promotes operations queued longer than this ahead
	// of higher-priority newcomers.
	AgingThreshold time.Duration
	// RetryLimit bounds per-chunk retries for transient failures and
	// topology changes.
	RetryLimit int
	// RetryBackoff is the base delay before the first transient retry,
	// doubling per attempt.
	RetryBackoff time.Duration
	// TagOpen and TagClose delimit the routing tag inside keys.
	TagOpen  byte
	TagClose byte
	// CallTimeout bounds each RPC round-trip.
	CallTimeout time.Duration
	// RefreshInterval is the period of the background cluster map
	// refresh. Zero disables it; moved-triggered refreshes still run.
	RefreshInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:       256,
		MaxConnsPerNode: 4,
		MaxInflight:     64,
		Workers:         8,
		AgingThreshold:  500 * time.Millisecond,
		RetryLimit:      3,
		RetryBackoff:    10 * time.Millisecond,
		TagOpen:         '{',
		TagClose:        '}',
		CallTimeout:     5 * time.Second,
		RefreshInterval: 2 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxConnsPerNode < 1 {
		return fmt.Errorf("max connections per node must be positive, got %d", c.MaxConnsPerNode)
	}
	if c.MaxInflight < 0 {
		return fmt.Errorf("max inflight must not be negative, got %d", c.MaxInflight)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.RetryLimit < 0 {
		return fmt.Errorf("retry limit must not be negative, got %d", c.RetryLimit)
	}
	if c.TagOpen == 0 || c.TagClose == 0 {
		return fmt.Errorf("tag delimiters must be set")
	}
	return nil
}
