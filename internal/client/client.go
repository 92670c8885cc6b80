// Package client is the caller-facing access layer: it plans batched
// reads, writes and presence checks across the cluster and executes
// them through the shared scheduler.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/bkv/internal/executor"
	"github.com/DeltaLaboratory/bkv/internal/pool"
	"github.com/DeltaLaboratory/bkv/internal/protocol"
	"github.com/DeltaLaboratory/bkv/internal/scheduler"
	"github.com/DeltaLaboratory/bkv/internal/slot"
	"github.com/DeltaLaboratory/bkv/internal/topology"
)

type Client struct {
	cfg    Config
	routes *topology.Routes
	pool   *pool.Pool
	sched  *scheduler.Scheduler
	cancel context.CancelFunc
	logger zerolog.Logger
}

// New connects to the cluster reachable through the bootstrap addresses
// and returns a ready client. An optional logger may be provided; the
// default discards everything.
func New(ctx context.Context, bootstrap []string, cfg Config, logger ...zerolog.Logger) (*Client, error) {
	lg := zerolog.Nop()
	if len(logger) > 0 {
		lg = logger[0]
	}
	provider := newClusterProvider(bootstrap, cfg.CallTimeout, lg)
	return NewWithProvider(ctx, provider, cfg, lg)
}

// NewWithProvider builds a client over an externally supplied topology
// provider. Used directly by tests and by embedders that already track
// cluster membership.
func NewWithProvider(ctx context.Context, provider topology.Provider, cfg Config, logger ...zerolog.Logger) (*Client, error) {
	lg := zerolog.Nop()
	if len(logger) > 0 {
		lg = logger[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	routes, err := topology.NewRoutes(ctx, provider, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch initial cluster map: %w", err)
	}

	router := slot.NewRouter(cfg.TagOpen, cfg.TagClose)

	p := pool.New(Factory(cfg.CallTimeout), pool.Config{
		MaxPerNode:  cfg.MaxConnsPerNode,
		MaxInflight: cfg.MaxInflight,
	}, lg)

	exec := executor.New(router, routes, p, executor.Config{
		ChunkSize:    cfg.ChunkSize,
		RetryLimit:   cfg.RetryLimit,
		RetryBackoff: cfg.RetryBackoff,
	}, lg)

	sched := scheduler.New(exec, scheduler.Config{
		Workers:        cfg.Workers,
		AgingThreshold: cfg.AgingThreshold,
	}, lg)

	watchCtx, cancel := context.WithCancel(context.Background())
	if cfg.RefreshInterval > 0 {
		go routes.Watch(watchCtx, cfg.RefreshInterval)
	}

	return &Client{
		cfg:    cfg,
		routes: routes,
		pool:   p,
		sched:  sched,
		cancel: cancel,
		logger: lg.With().Str("layer", "client").Logger(),
	}, nil
}

// GetMany reads the values for keys under the given priority. Results
// are index-aligned with keys; a key that does not exist yields
// Found=false with a nil error.
func (c *Client) GetMany(ctx context.Context, keys [][]byte, priority scheduler.Priority) ([]executor.Result, error) {
	return c.submit(ctx, executor.Request{Kind: executor.ReadMany, Keys: keys}, priority)
}

// SetMany stores items under the given priority. Results are
// index-aligned with items; Found=true marks an acknowledged write.
func (c *Client) SetMany(ctx context.Context, items []protocol.Item, priority scheduler.Priority) ([]executor.Result, error) {
	return c.submit(ctx, executor.Request{Kind: executor.WriteMany, Items: items}, priority)
}

// ExistsMany checks key presence without transferring values. Runs at
// Peek priority.
func (c *Client) ExistsMany(ctx context.Context, keys [][]byte) ([]executor.Result, error) {
	return c.submit(ctx, executor.Request{Kind: executor.ExistsMany, Keys: keys}, scheduler.Peek)
}

// Get reads a single key at Get priority. A missing key returns
// (nil, nil).
func (c *Client) Get(ctx context.Context, key []byte) ([]byte, error) {
	results, err := c.GetMany(ctx, [][]byte{key}, scheduler.Get)
	if err != nil {
		return nil, err
	}
	if err := results[0].Err; err != nil {
		return nil, err
	}
	if !results[0].Found {
		return nil, nil
	}
	return results[0].Value, nil
}

// Set stores a single key at Put priority. A zero ttl stores the value
// without expiry.
func (c *Client) Set(ctx context.Context, key, value []byte, ttl time.Duration) error {
	results, err := c.SetMany(ctx, []protocol.Item{{Key: key, Value: value, TTL: ttl}}, scheduler.Put)
	if err != nil {
		return err
	}
	return results[0].Err
}

// Exists checks a single key at Peek priority.
func (c *Client) Exists(ctx context.Context, key []byte) (bool, error) {
	results, err := c.ExistsMany(ctx, [][]byte{key})
	if err != nil {
		return false, err
	}
	if err := results[0].Err; err != nil {
		return false, err
	}
	return results[0].Found, nil
}

// SubmitRead queues a batched read without waiting, returning the
// operation handle. Prefetchers use this to overlap planning with
// other work.
func (c *Client) SubmitRead(ctx context.Context, keys [][]byte, priority scheduler.Priority) (*scheduler.Operation, error) {
	return c.sched.Submit(ctx, executor.Request{Kind: executor.ReadMany, Keys: keys}, priority)
}

func (c *Client) submit(ctx context.Context, req executor.Request, priority scheduler.Priority) ([]executor.Result, error) {
	op, err := c.sched.Submit(ctx, req, priority)
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

// Refresh forces a cluster map refresh, coalescing with any already in
// flight.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.routes.Refresh(ctx)
	return err
}

// Nodes lists the members of the current cluster map.
func (c *Client) Nodes() []topology.Node {
	return c.routes.Current().Nodes()
}

// Close shuts the client down. With drain, queued operations run to
// completion first; without, they are cancelled. Either way dispatched
// operations are awaited before connections are released.
func (c *Client) Close(drain bool) error {
	c.cancel()
	c.sched.Shutdown(drain)
	c.pool.Close()
	return nil
}
