// Package nodestore defines the interface for storing and retrieving the
// mutable execution state of job instances during a run.
//
// # Why Node Store Exists
//
// The scheduler is the only writer of instance state, but several readers
// need it while the run is in flight: the status endpoint of the control
// server, notifiers and, once the run ends, the aggregator. The store keeps
// that state apart from the immutable run graph so readers never touch the
// scheduler's own bookkeeping.
//
// # Lifecycle and Usage
//
// The store is:
//  1. **Created** once per run (ephemeral, not persistent across runs)
//  2. **Initialized** with every instance in Pending status via Register
//  3. **Mutated** by the scheduler as instances change state and as the
//     step runner streams step results
//  4. **Queried** by the control server and the aggregator
//  5. **Discarded** when the run ends
package nodestore

import (
	"context"
	"errors"
	"time"

	"github.com/specialistvlad/pipegrid/internal/model"
	"github.com/specialistvlad/pipegrid/internal/nodeid"
)

// ErrUnknownInstance is returned for instances that were never registered.
var ErrUnknownInstance = errors.New("instance is not registered")

// Record is a point-in-time copy of one instance's state.
type Record struct {
	ID       nodeid.Address
	Status   model.Status
	Reason   model.SkipReason
	Agent    string
	Started  time.Time
	Finished time.Time
	Err      error
	Steps    []model.StepResult
}

// Duration is the time the instance spent running, or zero if it never
// finished running.
func (r Record) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Store manages the mutable execution state of instances.
//
// Implementations MUST be safe for concurrent use: the scheduler writes
// while the control server reads.
type Store interface {
	// Register adds instances in Pending state. Registration order is the
	// order List returns.
	Register(ctx context.Context, ids ...nodeid.Address) error

	// SetStatus records a state transition. Entering Running stamps the
	// start time, entering a terminal state stamps the finish time. Reason
	// is only meaningful for Skipped.
	SetStatus(ctx context.Context, id nodeid.Address, status model.Status, reason model.SkipReason) error

	// GetStatus returns the current status of an instance.
	GetStatus(ctx context.Context, id nodeid.Address) (model.Status, error)

	// SetAgent records which agent runs the instance.
	SetAgent(ctx context.Context, id nodeid.Address, agent string) error

	// AppendStepResult records a step result as it is produced.
	AppendStepResult(ctx context.Context, id nodeid.Address, result model.StepResult) error

	// SetError records why an instance did not succeed.
	SetError(ctx context.Context, id nodeid.Address, instanceErr error) error

	// GetError returns the recorded error, or nil.
	GetError(ctx context.Context, id nodeid.Address) (error, error)

	// Get returns a copy of one instance's record.
	Get(ctx context.Context, id nodeid.Address) (Record, error)

	// List returns copies of all records in registration order.
	List(ctx context.Context) ([]Record, error)
}
