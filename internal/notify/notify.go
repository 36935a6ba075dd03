package notify

import (
	"context"
	"time"

	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/model"
)

// Kind tells what an Event describes.
type Kind string

const (
	KindInstance Kind = "instance"
	KindStep     Kind = "step"
	KindRun      Kind = "run"
)

// Event is one notification.
type Event struct {
	Kind     Kind              `json:"kind"`
	RunID    string            `json:"run_id"`
	Time     time.Time         `json:"time"`
	Job      string            `json:"job,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Status   model.Status      `json:"status"`
	Reason   model.SkipReason  `json:"reason,omitempty"`
	Step     *model.StepResult `json:"step,omitempty"`
}

// Notifier receives events.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) {}

// Multi fans events out to several notifiers in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}

// LogNotifier writes events to the context logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, ev Event) {
	logger := ctxlog.FromContext(ctx)
	switch ev.Kind {
	case KindInstance:
		args := []any{"instance", ev.Instance, "status", ev.Status}
		if ev.Reason != model.SkipNone {
			args = append(args, "reason", ev.Reason)
		}
		logger.Info("Instance state changed.", args...)
	case KindStep:
		if ev.Step == nil {
			return
		}
		logger.Debug("Step finished.", "instance", ev.Instance, "step", ev.Step.Name, "outcome", ev.Step.Outcome, "exit_code", ev.Step.ExitCode, "duration", ev.Step.Duration)
	case KindRun:
		logger.Info("🏁 Run finished.", "run", ev.RunID, "status", ev.Status)
	}
}
