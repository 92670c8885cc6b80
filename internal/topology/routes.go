package topology

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Provider fetches the current cluster map from wherever topology is
// authoritative: a backend node, a static configuration, or a test
// double.
type Provider interface {
	CurrentMap(ctx context.Context) (*Map, error)
}

// Static is a Provider that always serves the same assignment, for
// fixed single-node or statically-configured clusters.
type Static struct {
	m *Map
}

func NewStatic(nodes []Node) (*Static, error) {
	m, err := Assign(nodes)
	if err != nil {
		return nil, err
	}
	return &Static{m: m}, nil
}

func (s *Static) CurrentMap(_ context.Context) (*Map, error) {
	return s.m, nil
}

// Routes is the shared, refreshable view of slot ownership. Reads are
// lock-free; Refresh swaps in a complete new snapshot. Concurrent
// refreshes (a burst of moved chunks) are coalesced into one provider
// fetch.
type Routes struct {
	provider Provider
	current  atomic.Pointer[Map]
	group    singleflight.Group
	logger   zerolog.Logger
}

func NewRoutes(ctx context.Context, provider Provider, logger zerolog.Logger) (*Routes, error) {
	r := &Routes{
		provider: provider,
		logger:   logger.With().Str("layer", "topology").Logger(),
	}

	m, err := provider.CurrentMap(ctx)
	if err != nil {
		return nil, err
	}
	r.current.Store(m)

	return r, nil
}

// Current returns the latest snapshot.
func (r *Routes) Current() *Map {
	return r.current.Load()
}

// Refresh fetches a new snapshot and swaps it in. Callers racing on
// Refresh share a single provider round-trip.
func (r *Routes) Refresh(ctx context.Context) (*Map, error) {
	v, err, shared := r.group.Do("refresh", func() (interface{}, error) {
		m, err := r.provider.CurrentMap(ctx)
		if err != nil {
			return nil, err
		}
		r.current.Store(m)
		return m, nil
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to refresh cluster map")
		return nil, err
	}
	if shared {
		r.logger.Debug().Msg("coalesced concurrent map refresh")
	}
	return v.(*Map), nil
}

// Watch refreshes the snapshot periodically until ctx is cancelled.
func (r *Routes) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("periodic map refresh failed")
			}
		}
	}
}
