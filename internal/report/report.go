package report

import (
	"time"

	"github.com/specialistvlad/pipegrid/internal/graph"
	"github.com/specialistvlad/pipegrid/internal/model"
	"github.com/specialistvlad/pipegrid/internal/scheduler"
)

// Exit codes of a finished run.
const (
	ExitSucceeded = 0
	ExitFailed    = 1
)

// Report is the externally visible summary of one run.
type Report struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	Pipeline   string        `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	Status     model.Status  `json:"status" yaml:"status"`
	Aborted    bool          `json:"aborted,omitempty" yaml:"aborted,omitempty"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration   time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Jobs       []*Job        `json:"jobs" yaml:"jobs"`
}

// Job groups the instances of one job template.
type Job struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name,omitempty" yaml:"name,omitempty"`
	Status    model.Status  `json:"status" yaml:"status"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Instances []*Instance   `json:"instances" yaml:"instances"`
}

// Instance is the terminal state of one job instance.
type Instance struct {
	ID              string             `json:"id" yaml:"id"`
	Name            string             `json:"name,omitempty" yaml:"name,omitempty"`
	Matrix          map[string]string  `json:"matrix,omitempty" yaml:"matrix,omitempty"`
	Status          model.Status       `json:"status" yaml:"status"`
	SkipReason      model.SkipReason   `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty"`
	ContinueOnError bool               `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`
	Agent           string             `json:"agent,omitempty" yaml:"agent,omitempty"`
	StartedAt       time.Time          `json:"started_at,omitzero" yaml:"started_at,omitempty"`
	Duration        time.Duration      `json:"duration_ns" yaml:"duration_ns"`
	Error           string             `json:"error,omitempty" yaml:"error,omitempty"`
	Steps           []model.StepResult `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// ExitCode maps the overall status to a process exit code.
func (r *Report) ExitCode() int {
	if r.Status == model.StatusSucceeded {
		return ExitSucceeded
	}
	return ExitFailed
}

// Instance finds an instance report by key.
func (r *Report) Instance(key string) (*Instance, bool) {
	for _, j := range r.Jobs {
		for _, inst := range j.Instances {
			if inst.ID == key {
				return inst, true
			}
		}
	}
	return nil, false
}

// Job finds a job report by id.
func (r *Report) Job(id string) (*Job, bool) {
	for _, j := range r.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return nil, false
}

// Aggregate builds the report of a finished run. Every instance of g must
// be terminal in res.
func Aggregate(runID, pipeline string, g *graph.RunGraph, res *scheduler.Result) *Report {
	byKey := make(map[string]*scheduler.InstanceResult, len(res.Instances))
	for _, ir := range res.Instances {
		byKey[ir.Instance.Key()] = ir
	}

	r := &Report{
		RunID:      runID,
		Pipeline:   pipeline,
		Aborted:    res.Aborted,
		StartedAt:  res.Started,
		FinishedAt: res.Finished,
		Duration:   res.Finished.Sub(res.Started),
	}
	succeeded := !res.Aborted
	for _, job := range g.Jobs() {
		jr := &Job{ID: job.Template.ID, Instances: []*Instance{}}
		var statuses []model.Status
		var started, finished time.Time
		for _, inst := range job.Instances {
			ir, ok := byKey[inst.Key()]
			if !ok {
				ir = &scheduler.InstanceResult{Instance: inst, Status: model.StatusPending}
			}
			jr.Instances = append(jr.Instances, instanceReport(ir))
			statuses = append(statuses, ir.Status)
			if !inst.ContinueOnError && !passes(ir) {
				succeeded = false
			}
			if !ir.Started.IsZero() && (started.IsZero() || ir.Started.Before(started)) {
				started = ir.Started
			}
			if ir.Finished.After(finished) {
				finished = ir.Finished
			}
		}
		if len(job.Instances) == 1 && job.Instances[0].DisplayName != job.Template.ID {
			jr.Name = job.Instances[0].DisplayName
		}
		jr.Status = jobStatus(statuses)
		if !started.IsZero() {
			jr.Duration = finished.Sub(started)
		}
		r.Jobs = append(r.Jobs, jr)
	}

	r.Status = model.StatusFailed
	if succeeded {
		r.Status = model.StatusSucceeded
	}
	return r
}

func passes(ir *scheduler.InstanceResult) bool {
	switch ir.Status {
	case model.StatusSucceeded:
		return true
	case model.StatusSkipped:
		return ir.Reason == model.SkipCondition
	}
	return false
}

// jobStatus folds instance statuses: any timeout wins over any failure,
// which wins over success. All-skipped and empty jobs are skipped.
func jobStatus(statuses []model.Status) model.Status {
	out := model.StatusSkipped
	for _, s := range statuses {
		switch s {
		case model.StatusTimedOut:
			return model.StatusTimedOut
		case model.StatusFailed:
			out = model.StatusFailed
		case model.StatusSucceeded:
			if out == model.StatusSkipped {
				out = model.StatusSucceeded
			}
		case model.StatusSkipped:
		default:
			if out != model.StatusFailed {
				out = s
			}
		}
	}
	return out
}

func instanceReport(ir *scheduler.InstanceResult) *Instance {
	inst := ir.Instance
	out := &Instance{
		ID:              inst.Key(),
		Matrix:          inst.ID.Labels(),
		Status:          ir.Status,
		SkipReason:      ir.Reason,
		ContinueOnError: inst.ContinueOnError,
		Agent:           ir.Agent,
		StartedAt:       ir.Started,
		Duration:        ir.Duration(),
		Steps:           ir.Steps,
	}
	if inst.DisplayName != inst.Key() {
		out.Name = inst.DisplayName
	}
	if ir.Err != nil {
		out.Error = ir.Err.Error()
	}
	return out
}
