package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/pipegrid/internal/agent"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/executor"
	"github.com/specialistvlad/pipegrid/internal/graph"
	"github.com/specialistvlad/pipegrid/internal/inmemorystore"
	"github.com/specialistvlad/pipegrid/internal/metrics"
	"github.com/specialistvlad/pipegrid/internal/model"
	"github.com/specialistvlad/pipegrid/internal/nodestore"
	"github.com/specialistvlad/pipegrid/internal/notify"
)

// InstanceRunner executes the steps of one instance on an agent.
// executor.StepRunner is the production implementation.
type InstanceRunner interface {
	Run(ctx context.Context, inst *model.Instance, a agent.Agent, emit func(model.StepResult)) executor.Outcome
}

// Scheduler runs a graph once. It is not reusable.
type Scheduler struct {
	graph  *graph.RunGraph
	pools  *agent.Pools
	runner InstanceRunner

	store         nodestore.Store
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	maxParallel   int
	retryInterval time.Duration
	runID         string

	abortOnce sync.Once
	abortCh   chan struct{}
}

// New creates a scheduler for g.
func New(g *graph.RunGraph, pools *agent.Pools, runner InstanceRunner, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:         g,
		pools:         pools,
		runner:        runner,
		notifier:      notify.Nop{},
		retryInterval: DefaultRetryInterval,
		abortCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = inmemorystore.New()
	}
	return s
}

// Store returns the store instance state is mirrored into.
func (s *Scheduler) Store() nodestore.Store {
	return s.store
}

// Abort requests a global abort. It is safe to call from any goroutine, any
// number of times.
func (s *Scheduler) Abort() {
	s.abortOnce.Do(func() { close(s.abortCh) })
}

// tracker is the loop-private state of one instance.
type tracker struct {
	inst      *model.Instance
	status    model.Status
	reason    model.SkipReason
	remaining int
	agent     agent.Agent
	pool      *agent.Pool
	result    InstanceResult
}

// event is sent by workers to the decision loop.
type event struct {
	key     string
	step    *model.StepResult
	outcome *executor.Outcome
}

// run holds the state of one Run call. Only the decision loop touches it.
type run struct {
	*Scheduler
	trackers map[string]*tracker
	queue    []*tracker
	running  int
	aborted  bool
	events   chan event
	cancel   context.CancelFunc
}

// Run executes the graph until every instance is terminal. The returned
// error reports setup problems only; instance failures are in the Result.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	if err := s.checkPools(); err != nil {
		return nil, err
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		Scheduler: s,
		trackers:  make(map[string]*tracker, s.graph.Len()),
		events:    make(chan event, s.pools.Capacity()*4+1),
		cancel:    cancel,
	}
	result := &Result{Started: time.Now(), byKey: make(map[string]*InstanceResult, s.graph.Len())}

	if err := r.init(ctx); err != nil {
		return nil, err
	}
	logger.Info("🚀 Starting run.", "instances", s.graph.Len(), "capacity", s.pools.Capacity())

	retry := time.NewTimer(s.retryInterval)
	retry.Stop()
	defer retry.Stop()

	// Both channels stay readable once fired; nil them so the loop only
	// waits on events while running instances drain.
	abortCh, done := s.abortCh, ctx.Done()
	r.dispatch(ctx, workCtx, retry)
	for r.running > 0 || len(r.queue) > 0 {
		select {
		case ev := <-r.events:
			r.handle(ctx, ev)
		case <-retry.C:
		case <-abortCh:
			abortCh = nil
			r.abort(ctx, "abort requested")
		case <-done:
			done = nil
			r.abort(ctx, ctx.Err().Error())
		}
		r.dispatch(ctx, workCtx, retry)
	}
	// The last instance may have drained before the loop saw cancellation.
	if ctx.Err() != nil {
		r.aborted = true
	}

	for _, inst := range s.graph.Instances() {
		t := r.trackers[inst.Key()]
		if !t.status.IsTerminal() {
			return nil, fmt.Errorf("scheduler stalled: instance %s is still %s", inst.Key(), t.status)
		}
		t.result.Instance = t.inst
		t.result.Status = t.status
		t.result.Reason = t.reason
		result.Instances = append(result.Instances, &t.result)
		result.byKey[inst.Key()] = &t.result
	}
	result.Finished = time.Now()
	result.Aborted = r.aborted
	logger.Info("🏁 Run complete.", "instances", len(result.Instances), "aborted", r.aborted, "duration", result.Finished.Sub(result.Started))
	return result, nil
}

func (s *Scheduler) checkPools() error {
	if err := s.graph.ValidatePools(s.pools.Names()); err != nil {
		return err
	}
	for _, name := range s.pools.Names() {
		if p, _ := s.pools.Get(name); p.Capacity() == 0 {
			for _, inst := range s.graph.Instances() {
				if inst.Pool == name {
					return fmt.Errorf("pool %q has no agents but instance %s needs it", name, inst.Key())
				}
			}
		}
	}
	return nil
}

// init registers every instance and makes the first decisions: roots go to
// Ready or, when their condition is false, Skipped. Everything else is
// Blocked; a condition skip below a root waits for its dependencies.
func (r *run) init(ctx context.Context) error {
	instances := r.graph.Instances()
	keys := make([]string, 0, len(instances))
	for _, inst := range instances {
		r.trackers[inst.Key()] = &tracker{inst: inst, status: model.StatusPending}
	}
	for _, inst := range instances {
		keys = append(keys, inst.Key())
		if err := r.store.Register(ctx, inst.ID); err != nil {
			return fmt.Errorf("registering %s: %w", inst.Key(), err)
		}
	}

	var settled []*tracker
	for _, key := range keys {
		t := r.trackers[key]
		t.remaining = len(r.graph.Dependencies(key))
		switch {
		case t.remaining == 0 && t.inst.Skip:
			r.transition(ctx, t, model.StatusSkipped, model.SkipCondition)
			settled = append(settled, t)
		case t.remaining == 0:
			r.transition(ctx, t, model.StatusReady, model.SkipNone)
			r.queue = append(r.queue, t)
		default:
			r.transition(ctx, t, model.StatusBlocked, model.SkipNone)
		}
	}
	for _, t := range settled {
		r.settle(ctx, t)
	}
	return nil
}

// dispatch starts queued instances while agents and the parallelism cap
// allow. Instances whose pool is busy stay queued in order.
func (r *run) dispatch(ctx, workCtx context.Context, retry *time.Timer) {
	if r.aborted {
		return
	}
	waiting := r.queue[:0]
	for _, t := range r.queue {
		if r.maxParallel > 0 && r.running >= r.maxParallel {
			waiting = append(waiting, t)
			continue
		}
		pool, _ := r.pools.Get(t.inst.Pool)
		a, err := pool.TryAcquire()
		if errors.Is(err, agent.ErrAgentUnavailable) {
			r.metrics.AgentUnavailable(pool.Name())
			waiting = append(waiting, t)
			continue
		}
		t.agent, t.pool = a, pool
		r.start(ctx, workCtx, t)
	}
	r.queue = waiting

	if len(r.queue) > 0 && !r.aborted {
		retry.Reset(r.retryInterval)
	}
}

func (r *run) start(ctx, workCtx context.Context, t *tracker) {
	key := t.inst.Key()
	r.transition(ctx, t, model.StatusRunning, model.SkipNone)
	t.result.Agent = t.agent.Name()
	if err := r.store.SetAgent(ctx, t.inst.ID, t.result.Agent); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to record agent.", "instance", key, "error", err)
	}
	r.running++

	go func(inst *model.Instance, a agent.Agent) {
		out := r.runner.Run(workCtx, inst, a, func(res model.StepResult) {
			r.events <- event{key: key, step: &res}
		})
		r.events <- event{key: key, outcome: &out}
	}(t.inst, t.agent)
}

func (r *run) handle(ctx context.Context, ev event) {
	t := r.trackers[ev.key]
	logger := ctxlog.FromContext(ctx).With("instance", ev.key)

	if ev.step != nil {
		t.result.Steps = append(t.result.Steps, *ev.step)
		if err := r.store.AppendStepResult(ctx, t.inst.ID, *ev.step); err != nil {
			logger.Warn("Failed to record step result.", "error", err)
		}
		r.metrics.StepFinished(ev.step.Outcome)
		r.notifier.Notify(ctx, notify.Event{
			Kind:     notify.KindStep,
			RunID:    r.runID,
			Time:     time.Now(),
			Job:      t.inst.Job,
			Instance: ev.key,
			Status:   t.status,
			Step:     ev.step,
		})
		return
	}

	r.running--
	t.pool.Release(t.agent)
	t.agent = nil

	t.result.Err = ev.outcome.Err
	if ev.outcome.Err != nil {
		if err := r.store.SetError(ctx, t.inst.ID, ev.outcome.Err); err != nil {
			logger.Warn("Failed to record instance error.", "error", err)
		}
	}
	r.transition(ctx, t, ev.outcome.Status, model.SkipNone)
	r.settle(ctx, t)
}

// settle propagates a terminal instance to its dependents.
func (r *run) settle(ctx context.Context, done *tracker) {
	pending := []*tracker{done}
	for len(pending) > 0 {
		t := pending[0]
		pending = pending[1:]
		for _, dep := range r.graph.Dependents(t.inst.Key()) {
			d := r.trackers[dep.Key()]
			d.remaining--
			if d.remaining > 0 || d.status.IsTerminal() {
				continue
			}
			if r.blockedByUpstream(d) {
				r.transition(ctx, d, model.StatusSkipped, model.SkipUpstream)
				pending = append(pending, d)
				continue
			}
			if d.inst.Skip {
				r.transition(ctx, d, model.StatusSkipped, model.SkipCondition)
				pending = append(pending, d)
				continue
			}
			r.transition(ctx, d, model.StatusReady, model.SkipNone)
			r.queue = append(r.queue, d)
		}
	}
}

// blockedByUpstream applies the dependency satisfaction rule to t, whose
// dependencies are all terminal.
func (r *run) blockedByUpstream(t *tracker) bool {
	for _, dep := range r.graph.Dependencies(t.inst.Key()) {
		d := r.trackers[dep.Key()]
		switch d.status {
		case model.StatusFailed, model.StatusTimedOut:
			if !d.inst.ContinueOnError {
				return true
			}
		case model.StatusSkipped:
			if d.reason == model.SkipUpstream || d.reason == model.SkipAborted {
				return true
			}
		}
	}
	return false
}

// abort skips everything that has not started and cancels running
// instances. Results of running instances still arrive through events.
func (r *run) abort(ctx context.Context, why string) {
	if r.aborted {
		return
	}
	r.aborted = true
	ctxlog.FromContext(ctx).Warn("🛑 Aborting run.", "reason", why, "running", r.running)
	r.cancel()
	r.queue = nil
	for _, inst := range r.graph.Instances() {
		t := r.trackers[inst.Key()]
		switch t.status {
		case model.StatusPending, model.StatusBlocked, model.StatusReady:
			r.transition(ctx, t, model.StatusSkipped, model.SkipAborted)
		}
	}
}

// transition is the only place instance status changes.
func (r *run) transition(ctx context.Context, t *tracker, to model.Status, reason model.SkipReason) {
	from := t.status
	if !from.CanTransition(to) {
		panic(fmt.Sprintf("scheduler: illegal transition of %s from %s to %s", t.inst.Key(), from, to))
	}
	t.status, t.reason = to, reason

	now := time.Now()
	switch {
	case to == model.StatusRunning:
		t.result.Started = now
		r.metrics.InstanceStarted()
	case to.IsTerminal():
		t.result.Finished = now
		r.metrics.InstanceFinished(t.inst.Job, to, from == model.StatusRunning, t.result.Duration())
	}

	if err := r.store.SetStatus(ctx, t.inst.ID, to, reason); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to record status.", "instance", t.inst.Key(), "error", err)
	}
	r.notifier.Notify(ctx, notify.Event{
		Kind:     notify.KindInstance,
		RunID:    r.runID,
		Time:     now,
		Job:      t.inst.Job,
		Instance: t.inst.Key(),
		Status:   to,
		Reason:   reason,
	})
}
