package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMoved is matched by MovedError via errors.Is.
	ErrMoved = errors.New("slot moved")

	ErrTransient     = errors.New("transient backend error")
	ErrPermanent     = errors.New("permanent backend error")
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrCancelled     = errors.New("operation cancelled")
	ErrShutdown      = errors.New("shutting down")
)

// MovedError reports that a slot is owned by a different node than the
// one the call was sent to.
type MovedError struct {
	Slot    uint16
	NodeID  string
	Address string
}

func (e *MovedError) Error() string {
	return fmt.Sprintf("slot %d moved to %s (%s)", e.Slot, e.NodeID, e.Address)
}

func (e *MovedError) Is(target error) bool {
	return target == ErrMoved
}

// StatusError converts a non-OK response status into a typed error.
func StatusError(status Status, moved *Moved, msg string) error {
	switch status {
	case StatusOK:
		return nil
	case StatusMoved:
		if moved == nil {
			return ErrMoved
		}
		return &MovedError{Slot: moved.Slot, NodeID: moved.NodeID, Address: moved.Address}
	case StatusTransient:
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrTransient, msg)
		}
		return ErrTransient
	default:
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrPermanent, msg)
		}
		return ErrPermanent
	}
}
