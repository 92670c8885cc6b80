package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DeltaLaboratory/bkv/internal/executor"
	"github.com/DeltaLaboratory/bkv/internal/protocol"
)

// State is the lifecycle of a submitted operation:
// QUEUED → DISPATCHED → (COMPLETED | FAILED), or QUEUED → CANCELLED.
// Once dispatched an operation runs to completion; there is no
// mid-flight cancellation of partially issued chunks.
type State uint32

const (
	StateQueued State = iota
	StateDispatched
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateDispatched:
		return "dispatched"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Operation is the completion handle for one submitted batch request.
type Operation struct {
	req      executor.Request
	priority Priority
	enqueued time.Time
	ctx      context.Context

	state atomic.Uint32
	once  sync.Once
	done  chan struct{}

	results []executor.Result
	err     error
}

// State returns the operation's current lifecycle state.
func (op *Operation) State() State {
	return State(op.state.Load())
}

// Priority returns the class the operation was submitted under.
func (op *Operation) Priority() Priority {
	return op.priority
}

// Cancel removes the operation before dispatch. It reports false once
// the operation has been handed to the executor.
func (op *Operation) Cancel() bool {
	if !op.state.CompareAndSwap(uint32(StateQueued), uint32(StateCancelled)) {
		return false
	}
	op.complete(StateCancelled, nil, protocol.ErrCancelled)
	return true
}

// Wait blocks until the operation finishes or ctx expires. On ctx
// expiry the operation itself keeps running (its results are recorded
// for bookkeeping); only this caller observes the timeout.
func (op *Operation) Wait(ctx context.Context) ([]executor.Result, error) {
	select {
	case <-op.done:
		return op.results, op.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete records the terminal state exactly once.
func (op *Operation) complete(state State, results []executor.Result, err error) {
	op.once.Do(func() {
		op.results = results
		op.err = err
		op.state.Store(uint32(state))
		close(op.done)
	})
}
