package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/pipegrid/internal/agent"
	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/expr"
	"github.com/specialistvlad/pipegrid/internal/graph"
	"github.com/specialistvlad/pipegrid/internal/hcl_adapter"
	"github.com/specialistvlad/pipegrid/internal/inmemorystore"
	"github.com/specialistvlad/pipegrid/internal/matrix"
	"github.com/specialistvlad/pipegrid/internal/metrics"
	"github.com/specialistvlad/pipegrid/internal/model"
	"github.com/specialistvlad/pipegrid/internal/nodestore"
	"github.com/specialistvlad/pipegrid/internal/scheduler"
	"github.com/specialistvlad/pipegrid/internal/yaml_adapter"
	"github.com/zclconf/go-cty/cty"
)

// ErrInvalid marks failures caused by the definition or the configuration
// rather than by the run itself.
var ErrInvalid = errors.New("invalid pipeline")

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalid, err)
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	cfg     *Config
	runID   string
	eval    *expr.Evaluator
	metrics *metrics.Metrics
	store   nodestore.Store
	pools   *agent.Pools

	mu     sync.Mutex
	sched  *scheduler.Scheduler
	server *http.Server
}

// Option configures an App.
type Option func(*App)

// WithPools runs on the given pools instead of building them from the
// configuration. The caller keeps ownership and closes them.
func WithPools(p *agent.Pools) Option {
	return func(a *App) { a.pools = p }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(a *App) { a.runID = id }
}

// NewApp is the constructor for the main application. Reports and plans go
// to outW, logs to logW. Each App owns its logger and metrics registry.
func NewApp(outW, logW io.Writer, cfg *Config, opts ...Option) *App {
	a := &App{
		outW:    outW,
		logger:  newLogger(cfg.Log, logW),
		cfg:     cfg,
		runID:   uuid.NewString(),
		eval:    expr.New(),
		metrics: metrics.New(),
		store:   inmemorystore.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("run", a.runID)
	a.logger.Debug("Logger configured successfully.")
	return a
}

// RunID returns the identifier of the run this App performs.
func (a *App) RunID() string { return a.runID }

// Metrics returns the App's metrics. This is primarily for testing.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Plan is a loaded, expanded and validated pipeline, ready to schedule.
type Plan struct {
	Definition *config.Definition
	Parameters map[string]cty.Value
	Graph      *graph.RunGraph
}

// loaderFor picks a definition loader by path. Directories are read as HCL.
func loaderFor(path string) (config.Loader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access definition: %w", err)
	}
	if info.IsDir() {
		return hcl_adapter.NewLoader(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml_adapter.NewLoader(), nil
	case ".hcl":
		return hcl_adapter.NewLoader(), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnsupportedFormat, path)
	}
}

// Plan loads the definition, resolves parameters, expands every job and
// builds the run graph. Every error it returns wraps ErrInvalid.
func (a *App) Plan(ctx context.Context) (*Plan, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := ctxlog.FromContext(ctx)

	loader, err := loaderFor(a.cfg.Definition)
	if err != nil {
		return nil, invalid(err)
	}
	def, err := loader.Load(ctx, a.cfg.Definition)
	if err != nil {
		return nil, invalid(fmt.Errorf("failed to load definition: %w", err))
	}
	logger.Debug("Definition loaded.", "pipeline", def.Name, "jobs", len(def.Jobs))

	params, err := a.eval.ResolveParameters(def.Parameters, a.cfg.Parameters)
	if err != nil {
		return nil, invalid(err)
	}
	logger.Debug("Parameters resolved.", "parameters", expr.Redacted(def.Parameters, params))

	jobs, err := matrix.NewExpander(def, a.eval).ExpandAll(ctx, params)
	if err != nil {
		return nil, invalid(err)
	}
	g, err := graph.Build(ctx, jobs)
	if err != nil {
		return nil, invalid(fmt.Errorf("failed to build run graph: %w", err))
	}
	logger.Info("📋 Pipeline planned.", "pipeline", def.Name, "jobs", len(jobs), "instances", g.Len())
	return &Plan{Definition: def, Parameters: params, Graph: g}, nil
}

// WritePlan prints the jobs of p in dependency order with their instances.
func WritePlan(w io.Writer, p *Plan) error {
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline %s: %d instance(s)\n", p.Definition.Name, p.Graph.Len())
	byID := make(map[string]*model.Job, len(p.Graph.Jobs()))
	for _, j := range p.Graph.Jobs() {
		byID[j.Template.ID] = j
	}
	for _, id := range p.Graph.JobOrder() {
		j := byID[id]
		fmt.Fprintf(&b, "job %s", id)
		if deps := j.Template.DependsOn; len(deps) > 0 {
			fmt.Fprintf(&b, " (after %s)", strings.Join(deps, ", "))
		}
		if len(j.Instances) == 0 {
			b.WriteString(": no instances")
		}
		b.WriteString("\n")
		for _, inst := range j.Instances {
			fmt.Fprintf(&b, "  %s pool=%s steps=%d", inst.Key(), inst.Pool, len(inst.Steps))
			if inst.Skip {
				b.WriteString(" skipped")
			}
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (a *App) setScheduler(s *scheduler.Scheduler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sched = s
}

// Abort stops the active run. It reports false when nothing is running.
func (a *App) Abort() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sched == nil {
		return false
	}
	a.sched.Abort()
	return true
}
