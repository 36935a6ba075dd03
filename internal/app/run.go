package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/specialistvlad/pipegrid/internal/agent"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/executor"
	"github.com/specialistvlad/pipegrid/internal/graph"
	"github.com/specialistvlad/pipegrid/internal/notify"
	"github.com/specialistvlad/pipegrid/internal/report"
	"github.com/specialistvlad/pipegrid/internal/scheduler"
	"github.com/specialistvlad/pipegrid/internal/storage"
)

// Run executes the main application logic based on the provided configuration.
// A dry run prints the plan and returns a nil report. Otherwise the report
// is returned even when writing or archiving it failed.
func (a *App) Run(ctx context.Context) (*report.Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	plan, err := a.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if a.cfg.DryRun {
		a.logger.Info("Dry run, nothing will be executed.")
		return nil, WritePlan(a.outW, plan)
	}

	if a.cfg.Server.Port > 0 {
		if err := a.startServer(ctx, fmt.Sprintf(":%d", a.cfg.Server.Port)); err != nil {
			return nil, err
		}
		defer a.closeServer(ctx)
	}

	pools := a.pools
	if pools == nil {
		pools, err = agent.NewPools(a.cfg.Pools)
		if err != nil {
			return nil, invalid(fmt.Errorf("failed to set up agent pools: %w", err))
		}
		defer func() {
			if err := pools.Close(); err != nil {
				a.logger.Warn("Failed to release agents.", "error", err)
			}
		}()
	}

	notifier, closeNotifier := a.notifier(ctx)
	defer closeNotifier()

	var runnerOpts []executor.Option
	if a.cfg.Output.TailBytes > 0 {
		runnerOpts = append(runnerOpts, executor.WithTailLimit(a.cfg.Output.TailBytes))
	}
	runner := executor.NewStepRunner(a.eval, a.outputStore(), a.runID, runnerOpts...)

	sched := scheduler.New(plan.Graph, pools, runner,
		scheduler.WithStore(a.store),
		scheduler.WithNotifier(notifier),
		scheduler.WithMetrics(a.metrics),
		scheduler.WithMaxParallel(a.cfg.MaxParallel),
		scheduler.WithRunID(a.runID),
	)
	a.setScheduler(sched)
	defer a.setScheduler(nil)

	res, err := sched.Run(ctx)
	if err != nil {
		var unknownPool *graph.UnknownPoolError
		if errors.As(err, &unknownPool) {
			return nil, invalid(err)
		}
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	rep := report.Aggregate(a.runID, plan.Definition.Name, plan.Graph, res)
	notifier.Notify(ctx, notify.Event{
		Kind:   notify.KindRun,
		RunID:  a.runID,
		Time:   time.Now(),
		Status: rep.Status,
	})

	if err := a.writeReport(rep); err != nil {
		return rep, err
	}
	a.archive(ctx, rep)

	a.logger.Debug("App.Run method finished.")
	return rep, nil
}

func (a *App) outputStore() storage.OutputStore {
	if a.cfg.Output.Dir == "" {
		return storage.NopStore{}
	}
	return storage.NewFileStore(a.cfg.Output.Dir)
}

// notifier always logs events and also streams them over socket.io when a
// URL is configured. A notifier that cannot connect is skipped.
func (a *App) notifier(ctx context.Context) (notify.Notifier, func()) {
	ns := notify.Multi{notify.LogNotifier{}}
	if a.cfg.Notify.SocketIO.URL == "" {
		return ns, func() {}
	}
	sio, err := notify.DialSocketIO(ctx, a.cfg.Notify.SocketIO)
	if err != nil {
		a.logger.Warn("Socket.IO notifier disabled.", "error", err)
		return ns, func() {}
	}
	return append(ns, sio), func() {
		if err := sio.Close(); err != nil {
			a.logger.Warn("Failed to close socket.io notifier.", "error", err)
		}
	}
}

func (a *App) writeReport(rep *report.Report) error {
	if a.cfg.Report.Path == "" {
		return report.Write(a.outW, rep, a.cfg.Report.Format)
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.Report.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(a.cfg.Report.Path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := report.Write(f, rep, a.cfg.Report.Format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	a.logger.Info("📝 Report written.", "path", a.cfg.Report.Path)
	return nil
}

func (a *App) archiver(ctx context.Context) (report.Archiver, error) {
	switch a.cfg.Archive.Kind {
	case ArchiveFile:
		return &report.FileArchiver{Dir: a.cfg.Archive.Dir}, nil
	case ArchiveS3:
		return report.NewS3Archiver(ctx, a.cfg.Archive.S3)
	default:
		return nil, nil
	}
}

// archive stores the report. A failed archive does not fail the run.
func (a *App) archive(ctx context.Context, rep *report.Report) {
	arc, err := a.archiver(ctx)
	if err != nil {
		a.logger.Error("Report archive is not available.", "kind", a.cfg.Archive.Kind, "error", err)
		return
	}
	if arc == nil {
		return
	}
	loc, err := arc.Archive(ctx, rep)
	if err != nil {
		a.logger.Error("Failed to archive report.", "kind", a.cfg.Archive.Kind, "error", err)
		return
	}
	a.logger.Info("🗄️ Report archived.", "location", loc)
}
