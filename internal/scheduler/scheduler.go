// Package scheduler arbitrates batch operations of differing urgency
// over the shared executor: strict priority between classes, FIFO
// within a class, and aging so low-priority work is never starved.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/bkv/internal/executor"
	"github.com/DeltaLaboratory/bkv/internal/protocol"
)

// Priority classes, highest first. Presence checks answer fastest,
// prefetch reads yield to synchronous reads, and background writes come
// last.
type Priority uint8

const (
	Peek Priority = iota
	Prefetch
	Get
	Put

	numPriorities
)

func (p Priority) String() string {
	switch p {
	case Peek:
		return "peek"
	case Prefetch:
		return "prefetch"
	case Get:
		return "get"
	case Put:
		return "put"
	default:
		return "unknown"
	}
}

// Valid reports whether p names a real class.
func (p Priority) Valid() bool {
	return p < numPriorities
}

type Config struct {
	// Workers is the number of dispatch workers pulling queued
	// operations into the executor.
	Workers int
	// AgingThreshold promotes any operation queued longer than this
	// ahead of younger higher-priority work.
	AgingThreshold time.Duration
}

// Runner executes one planned batch operation; satisfied by
// executor.Executor.
type Runner interface {
	Execute(ctx context.Context, req executor.Request) []executor.Result
}

type Scheduler struct {
	exec   Runner
	aging  time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queues  [numPriorities][]*Operation
	closing bool

	wg sync.WaitGroup
}

func New(exec Runner, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.AgingThreshold <= 0 {
		cfg.AgingThreshold = 500 * time.Millisecond
	}

	s := &Scheduler{
		exec:   exec,
		aging:  cfg.AgingThreshold,
		logger: logger.With().Str("layer", "scheduler").Logger(),
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go s.worker()
	}

	return s
}

// Submit queues req under priority and returns its completion handle.
// The caller's deadline travels with the operation: expiring while
// queued cancels it, expiring after dispatch is reported by Wait while
// the chunks run to completion for bookkeeping.
func (s *Scheduler) Submit(ctx context.Context, req executor.Request, priority Priority) (*Operation, error) {
	if !priority.Valid() {
		priority = Put
	}

	op := &Operation{
		req:      req,
		priority: priority,
		enqueued: time.Now(),
		ctx:      ctx,
		done:     make(chan struct{}),
	}
	op.state.Store(uint32(StateQueued))

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, protocol.ErrShutdown
	}
	s.queues[priority] = append(s.queues[priority], op)
	s.mu.Unlock()

	s.cond.Signal()
	return op, nil
}

// worker pulls runnable operations until shutdown empties the queues.
func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		var op *Operation
		for {
			op = s.next()
			if op != nil {
				break
			}
			if s.closing {
				s.mu.Unlock()
				return
			}
			s.cond.Wait()
		}
		s.mu.Unlock()

		s.run(op)
	}
}

// next pops the operation to dispatch: the oldest one past the aging
// threshold if any, otherwise the head of the highest non-empty queue.
// Caller holds s.mu.
func (s *Scheduler) next() *Operation {
	now := time.Now()

	pick := -1
	var oldest time.Time
	for p := 0; p < int(numPriorities); p++ {
		if len(s.queues[p]) == 0 {
			continue
		}
		head := s.queues[p][0]
		if now.Sub(head.enqueued) >= s.aging && (pick < 0 || head.enqueued.Before(oldest)) {
			pick = p
			oldest = head.enqueued
		}
	}
	if pick < 0 {
		for p := 0; p < int(numPriorities); p++ {
			if len(s.queues[p]) > 0 {
				pick = p
				break
			}
		}
	}
	if pick < 0 {
		return nil
	}

	op := s.queues[pick][0]
	s.queues[pick] = s.queues[pick][1:]
	return op
}

// run executes one dequeued operation, honoring cancellation and
// pre-dispatch deadline expiry.
func (s *Scheduler) run(op *Operation) {
	if !op.state.CompareAndSwap(uint32(StateQueued), uint32(StateDispatched)) {
		// Cancelled while queued; Cancel already completed it.
		return
	}

	if err := op.ctx.Err(); err != nil {
		op.complete(StateCancelled, nil, protocol.ErrCancelled)
		return
	}

	start := time.Now()
	results := s.exec.Execute(op.ctx, op.req)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	s.logger.Debug().
		Str("priority", op.priority.String()).
		Str("kind", op.req.Kind.String()).
		Int("keys", len(results)).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("operation completed")

	if failed > 0 && failed == len(results) {
		op.complete(StateFailed, results, results[0].Err)
		return
	}
	op.complete(StateCompleted, results, nil)
}

// Shutdown stops accepting submissions. With drain, queued and
// dispatched operations run to completion first; without, queued
// operations are cancelled immediately and only dispatched ones are
// awaited.
func (s *Scheduler) Shutdown(drain bool) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closing = true

	if !drain {
		for p := range s.queues {
			for _, op := range s.queues[p] {
				if op.state.CompareAndSwap(uint32(StateQueued), uint32(StateCancelled)) {
					op.complete(StateCancelled, nil, protocol.ErrCancelled)
				}
			}
			s.queues[p] = nil
		}
	}
	s.mu.Unlock()

	s.cond.Broadcast()
	s.wg.Wait()
}
