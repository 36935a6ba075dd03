package scheduler

import (
	"time"

	"github.com/specialistvlad/pipegrid/internal/model"
)

// InstanceResult is the terminal state of one instance.
type InstanceResult struct {
	Instance *model.Instance
	Status   model.Status
	Reason   model.SkipReason
	Agent    string
	Started  time.Time
	Finished time.Time
	Err      error
	Steps    []model.StepResult
}

// Duration is how long the instance ran; zero if it never started.
func (r *InstanceResult) Duration() time.Duration {
	if r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Result is the outcome of a whole run.
type Result struct {
	Started  time.Time
	Finished time.Time
	Aborted  bool
	// Instances are in run graph order.
	Instances []*InstanceResult

	byKey map[string]*InstanceResult
}

// Instance returns the result of the instance with the given key.
func (r *Result) Instance(key string) (*InstanceResult, bool) {
	ir, ok := r.byKey[key]
	return ir, ok
}

// Statuses maps instance keys to their terminal status.
func (r *Result) Statuses() map[string]model.Status {
	out := make(map[string]model.Status, len(r.Instances))
	for _, ir := range r.Instances {
		out[ir.Instance.Key()] = ir.Status
	}
	return out
}
