// Package executor dispatches planned chunks as concurrent bulk backend
// calls and reassembles their results in the caller's original order.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/bkv/internal/batch"
	"github.com/DeltaLaboratory/bkv/internal/pool"
	"github.com/DeltaLaboratory/bkv/internal/protocol"
	"github.com/DeltaLaboratory/bkv/internal/slot"
	"github.com/DeltaLaboratory/bkv/internal/topology"
)

type Kind uint8

const (
	ReadMany Kind = iota
	WriteMany
	ExistsMany
)

func (k Kind) String() string {
	switch k {
	case ReadMany:
		return "read_many"
	case WriteMany:
		return "write_many"
	case ExistsMany:
		return "exists_many"
	default:
		return "unknown"
	}
}

// Request is one batch operation. Keys drives reads and presence
// checks; Items drives writes (Keys is derived from it then).
type Request struct {
	Kind  Kind
	Keys  [][]byte
	Items []protocol.Item
}

func (r *Request) keys() [][]byte {
	if r.Kind != WriteMany {
		return r.Keys
	}
	keys := make([][]byte, len(r.Items))
	for i, item := range r.Items {
		keys[i] = item.Key
	}
	return keys
}

// Result is the outcome for one request position. Exactly one of the
// three cases holds: a value (Found, Err nil), an explicit absence
// (!Found, Err nil), or a failure (Err non-nil). For writes and
// presence checks Value stays nil; a write ack is Err nil.
type Result struct {
	Value []byte
	Found bool
	Err   error
}

type Config struct {
	// ChunkSize caps the number of keys per bulk backend call.
	ChunkSize int
	// RetryLimit bounds retries per chunk, separately for transient
	// failures and for topology changes.
	RetryLimit int
	// RetryBackoff is the base delay before the first transient retry;
	// it doubles per attempt.
	RetryBackoff time.Duration
}

type Executor struct {
	router slot.Router
	routes *topology.Routes
	pool   *pool.Pool
	cfg    Config
	logger zerolog.Logger
}

func New(router slot.Router, routes *topology.Routes, p *pool.Pool, cfg Config, logger zerolog.Logger) *Executor {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 1
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}

	return &Executor{
		router: router,
		routes: routes,
		pool:   p,
		cfg:    cfg,
		logger: logger.With().Str("layer", "executor").Logger(),
	}
}

// Execute runs one batch operation. The returned slice always has one
// entry per request position, in request order; a chunk that exhausts
// its retries fails only its own positions.
func (e *Executor) Execute(ctx context.Context, req Request) []Result {
	keys := req.keys()
	results := make([]Result, len(keys))
	if len(keys) == 0 {
		return results
	}

	plan := batch.Split(keys, e.router.Slot, e.cfg.ChunkSize)

	var wg sync.WaitGroup
	for i := range plan.Chunks {
		wg.Add(1)
		go func(c batch.Chunk) {
			defer wg.Done()
			e.runChunk(ctx, &req, c, results)
		}(plan.Chunks[i])
	}
	wg.Wait()

	return results
}

// runChunk drives one chunk to completion and scatters its outcome.
// Each request position belongs to exactly one chunk, so writes into
// results need no synchronization.
func (e *Executor) runChunk(ctx context.Context, req *Request, c batch.Chunk, results []Result) {
	out, err := e.dispatch(ctx, req, c)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Uint16("slot", c.Slot).
			Int("keys", len(c.Keys)).
			Str("kind", req.Kind.String()).
			Msg("chunk failed")
		for _, idx := range c.Indexes {
			results[idx] = Result{Err: err}
		}
		return
	}
	for i, idx := range c.Indexes {
		results[idx] = out[i]
	}
}

// dispatch issues the chunk's bulk call, retrying transient failures
// with exponential backoff and topology changes after a map refresh,
// each bounded by RetryLimit.
func (e *Executor) dispatch(ctx context.Context, req *Request, c batch.Chunk) ([]Result, error) {
	m := e.routes.Current()

	var transient, moved int
	for {
		node, ok := m.Owner(c.Slot)
		if !ok {
			return nil, fmt.Errorf("%w: no owner for slot %d", protocol.ErrPermanent, c.Slot)
		}

		out, err := e.roundTrip(ctx, req, c, node)
		if err == nil {
			return out, nil
		}

		switch {
		case errors.Is(err, protocol.ErrMoved):
			moved++
			if moved > e.cfg.RetryLimit {
				return nil, err
			}
			e.logger.Debug().
				Uint16("slot", c.Slot).
				Str("node_id", node.ID).
				Int("attempt", moved).
				Msg("slot moved, refreshing cluster map")
			if refreshed, rerr := e.routes.Refresh(ctx); rerr == nil {
				m = refreshed
			} else if me := new(protocol.MovedError); errors.As(err, &me) && me.NodeID != "" {
				// Refresh failed but the response named the new owner.
				m = mapWithOverride(m, c.Slot, topology.Node{ID: me.NodeID, Address: me.Address})
			}
		case errors.Is(err, protocol.ErrTransient):
			transient++
			if transient > e.cfg.RetryLimit {
				return nil, err
			}
			if !e.backoff(ctx, transient) {
				return nil, fmt.Errorf("%w: %v", protocol.ErrTransient, ctx.Err())
			}
			m = e.routes.Current()
		default:
			return nil, err
		}
	}
}

// roundTrip performs exactly one bulk call against node. Transport
// errors mark the pooled connection broken and come back as transient;
// non-OK statuses come back as their typed error.
func (e *Executor) roundTrip(ctx context.Context, req *Request, c batch.Chunk, node topology.Node) ([]Result, error) {
	lease, err := e.pool.Acquire(ctx, node)
	if err != nil {
		return nil, err
	}

	switch req.Kind {
	case ReadMany:
		resp, callErr := lease.Conn().GetMany(ctx, c.Keys)
		lease.Release(callErr)
		if callErr != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrTransient, callErr)
		}
		if err := protocol.StatusError(resp.Status, resp.Moved, resp.Error); err != nil {
			return nil, err
		}
		if len(resp.Found) != len(c.Keys) || len(resp.Values) != len(c.Keys) {
			return nil, fmt.Errorf("%w: node %s returned %d results for %d keys",
				protocol.ErrPermanent, node.ID, len(resp.Found), len(c.Keys))
		}
		out := make([]Result, len(c.Keys))
		for i := range c.Keys {
			if resp.Found[i] {
				out[i] = Result{Value: resp.Values[i], Found: true}
			}
		}
		return out, nil

	case ExistsMany:
		resp, callErr := lease.Conn().ExistsMany(ctx, c.Keys)
		lease.Release(callErr)
		if callErr != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrTransient, callErr)
		}
		if err := protocol.StatusError(resp.Status, resp.Moved, resp.Error); err != nil {
			return nil, err
		}
		if len(resp.Exists) != len(c.Keys) {
			return nil, fmt.Errorf("%w: node %s returned %d results for %d keys",
				protocol.ErrPermanent, node.ID, len(resp.Exists), len(c.Keys))
		}
		out := make([]Result, len(c.Keys))
		for i := range c.Keys {
			out[i] = Result{Found: resp.Exists[i]}
		}
		return out, nil

	case WriteMany:
		items := make([]protocol.Item, len(c.Indexes))
		for i, idx := range c.Indexes {
			items[i] = req.Items[idx]
		}
		resp, callErr := lease.Conn().SetMany(ctx, items)
		lease.Release(callErr)
		if callErr != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrTransient, callErr)
		}
		if err := protocol.StatusError(resp.Status, resp.Moved, resp.Error); err != nil {
			return nil, err
		}
		if len(resp.Errors) != len(items) {
			return nil, fmt.Errorf("%w: node %s returned %d acks for %d items",
				protocol.ErrPermanent, node.ID, len(resp.Errors), len(items))
		}
		out := make([]Result, len(items))
		for i, msg := range resp.Errors {
			if msg != "" {
				out[i] = Result{Err: fmt.Errorf("%w: %s", protocol.ErrPermanent, msg)}
			} else {
				out[i] = Result{Found: true}
			}
		}
		return out, nil

	default:
		lease.Release(nil)
		return nil, fmt.Errorf("%w: unknown operation kind %d", protocol.ErrPermanent, req.Kind)
	}
}

// backoff sleeps for RetryBackoff doubled per attempt; false when ctx
// expires first.
func (e *Executor) backoff(ctx context.Context, attempt int) bool {
	if e.cfg.RetryBackoff <= 0 {
		return ctx.Err() == nil
	}

	delay := e.cfg.RetryBackoff << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// mapWithOverride is the fallback when a MOVED response names the new
// owner but the map refresh itself failed: patch just the one slot.
func mapWithOverride(m *topology.Map, s uint16, node topology.Node) *topology.Map {
	nodes := m.Nodes()
	found := false
	for i, n := range nodes {
		if n.ID == node.ID {
			nodes[i] = node
			found = true
			break
		}
	}
	if !found {
		nodes = append(nodes, node)
	}

	slots := m.Slots()
	slots[s] = node.ID

	patched, err := topology.NewMap(nodes, slots)
	if err != nil {
		return m
	}
	return patched
}
