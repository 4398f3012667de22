package data

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFetchFailed reports a read that found no node, a node of the
	// wrong shape, or a store-level read error. The store gives no
	// finer-grained cause.
	ErrFetchFailed = errors.New("failed to fetch from database")

	// ErrWriteFailed reports a rejected or errored write.
	ErrWriteFailed = errors.New("failed to write to database")

	// ErrNotFound reports a lookup whose target entry does not exist.
	ErrNotFound = errors.New("not found")
)

// PartialWriteError reports a multi-copy mutation that failed after some
// of its writes had already landed. Nothing is rolled back; the remote
// copies named in Completed are updated, the rest are not, and the
// divergence persists until a later operation or an observer reconciles
// it. Callers must treat the operation as attempted, not as failed
// cleanly.
type PartialWriteError struct {
	Op        string   // operation that fanned out, e.g. "send message"
	Completed []string // copies written before the failure, in order
	Err       error    // the failure that stopped the fan-out
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: partial write (completed: %s): %v",
		e.Op, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
