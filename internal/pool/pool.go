// Package pool maintains a bounded set of reusable backend connections
// per node, with blocking acquisition as backpressure and an optional
// global cap on concurrently leased connections.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/DeltaLaboratory/bkv/internal/protocol"
	"github.com/DeltaLaboratory/bkv/internal/topology"
)

// Factory dials a new connection to a node.
type Factory func(ctx context.Context, node topology.Node) (protocol.NodeConn, error)

type Config struct {
	// MaxPerNode is the connection cap per backend node.
	MaxPerNode int
	// MaxInflight caps leased connections across all nodes. Zero means
	// no global cap.
	MaxInflight int64
}

type Pool struct {
	factory Factory
	perNode int
	global  *semaphore.Weighted // nil when no global cap

	mu     sync.RWMutex
	nodes  map[string]*nodePool
	closed bool

	logger zerolog.Logger
}

// nodePool holds the per-node budget. A token is consumed for the whole
// lifetime of a live connection, leased or idle; it returns to the pool
// when the connection is discarded, which is what lets a fresh one be
// dialed lazily after a failure.
type nodePool struct {
	node   topology.Node
	tokens chan struct{}
	idle   chan protocol.NodeConn
}

func New(factory Factory, cfg Config, logger zerolog.Logger) *Pool {
	if cfg.MaxPerNode < 1 {
		cfg.MaxPerNode = 1
	}

	p := &Pool{
		factory: factory,
		perNode: cfg.MaxPerNode,
		nodes:   make(map[string]*nodePool),
		logger:  logger.With().Str("layer", "pool").Logger(),
	}
	if cfg.MaxInflight > 0 {
		p.global = semaphore.NewWeighted(cfg.MaxInflight)
	}

	return p
}

// Acquire leases a connection to node, blocking while the node's pool
// and the global in-flight budget are saturated. Saturation alone never
// fails an acquire; only ctx expiry does.
func (p *Pool) Acquire(ctx context.Context, node topology.Node) (*Lease, error) {
	if p.global != nil {
		if err := p.global.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrPoolExhausted, err)
		}
	}

	np, err := p.nodePool(node)
	if err != nil {
		p.releaseGlobal()
		return nil, err
	}

	// Fast path: reuse an idle connection.
	select {
	case conn := <-np.idle:
		return &Lease{pool: p, np: np, conn: conn}, nil
	default:
	}

	select {
	case conn := <-np.idle:
		return &Lease{pool: p, np: np, conn: conn}, nil
	case <-np.tokens:
		conn, err := p.factory(ctx, node)
		if err != nil {
			np.tokens <- struct{}{}
			p.releaseGlobal()
			return nil, fmt.Errorf("failed to dial node %s: %w", node.ID, err)
		}
		return &Lease{pool: p, np: np, conn: conn}, nil
	case <-ctx.Done():
		p.releaseGlobal()
		return nil, fmt.Errorf("%w: %v", protocol.ErrPoolExhausted, ctx.Err())
	}
}

func (p *Pool) nodePool(node topology.Node) (*nodePool, error) {
	p.mu.RLock()
	np, exists := p.nodes[node.ID]
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		return nil, protocol.ErrShutdown
	}
	if exists && np.node.Address == node.Address {
		return np, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, protocol.ErrShutdown
	}

	// Double check after acquiring the write lock.
	np, exists = p.nodes[node.ID]
	if exists {
		if np.node.Address == node.Address {
			return np, nil
		}
		// The node moved; its pooled connections point at the old
		// address and have to go.
		p.logger.Info().
			Str("node_id", node.ID).
			Str("old_address", np.node.Address).
			Str("new_address", node.Address).
			Msg("node address changed, discarding pooled connections")
		drain(np)
	}

	np = &nodePool{
		node:   node,
		tokens: make(chan struct{}, p.perNode),
		idle:   make(chan protocol.NodeConn, p.perNode),
	}
	for i := 0; i < p.perNode; i++ {
		np.tokens <- struct{}{}
	}
	p.nodes[node.ID] = np

	return np, nil
}

func (p *Pool) releaseGlobal() {
	if p.global != nil {
		p.global.Release(1)
	}
}

// Close discards every pooled connection. Leased connections are closed
// by their holders on release.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	nodes := p.nodes
	p.nodes = make(map[string]*nodePool)
	p.mu.Unlock()

	for _, np := range nodes {
		drain(np)
	}
}

func drain(np *nodePool) {
	for {
		select {
		case conn := <-np.idle:
			_ = conn.Close()
		default:
			return
		}
	}
}

// Lease is a scoped connection handle. Exactly one Release per lease;
// callers are expected to defer it so the connection is returned on
// every exit path.
type Lease struct {
	pool *Pool
	np   *nodePool
	conn protocol.NodeConn
	done bool
}

func (l *Lease) Conn() protocol.NodeConn {
	return l.conn
}

// Release returns the connection to the pool. A non-nil err marks the
// connection broken: it is closed and its budget freed so a fresh one
// can be dialed on the next acquire.
func (l *Lease) Release(err error) {
	if l.done {
		return
	}
	l.done = true

	if err != nil {
		_ = l.conn.Close()
		l.np.tokens <- struct{}{}
	} else {
		l.pool.mu.RLock()
		closed := l.pool.closed
		l.pool.mu.RUnlock()

		if closed {
			_ = l.conn.Close()
			l.np.tokens <- struct{}{}
		} else {
			l.np.idle <- l.conn
		}
	}

	l.pool.releaseGlobal()
}
