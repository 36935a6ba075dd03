package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/dag"
	"github.com/specialistvlad/pipegrid/internal/model"
)

// RunGraph is the validated, acyclic set of instances to execute.
type RunGraph struct {
	jobs      []*model.Job
	instances []*model.Instance
	byKey     map[string]*model.Instance
	jobGraph  *dag.Graph
	topology  *dag.Graph
}

// Build validates the job-level dependencies and links the instances.
func Build(ctx context.Context, jobs []*model.Job) (*RunGraph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Building run graph.", "jobs", len(jobs))

	g := &RunGraph{
		jobs:     jobs,
		byKey:    make(map[string]*model.Instance),
		jobGraph: dag.New(),
		topology: dag.New(),
	}

	for _, j := range jobs {
		g.jobGraph.AddNode(j.Template.ID)
	}
	for _, j := range jobs {
		for _, dep := range j.Template.DependsOn {
			if dep == j.Template.ID {
				return nil, &CycleError{Jobs: []string{dep, dep}}
			}
			if !g.jobGraph.HasNode(dep) {
				return nil, &UnknownJobError{Job: j.Template.ID, Dependency: dep}
			}
			if err := g.jobGraph.AddEdge(dep, j.Template.ID); err != nil {
				return nil, fmt.Errorf("linking job %q to %q: %w", dep, j.Template.ID, err)
			}
		}
	}
	if err := g.jobGraph.DetectCycles(); err != nil {
		return nil, asCycleError(err, func(id string) string { return id })
	}

	byJob := make(map[string]*model.Job, len(jobs))
	for _, j := range jobs {
		byJob[j.Template.ID] = j
		for _, inst := range j.Instances {
			key := inst.Key()
			if _, dup := g.byKey[key]; dup {
				return nil, fmt.Errorf("duplicate instance identifier %q", key)
			}
			g.byKey[key] = inst
			g.instances = append(g.instances, inst)
			g.topology.AddNode(key)
		}
	}

	edges := 0
	for _, j := range jobs {
		for _, dep := range j.Template.DependsOn {
			for _, from := range byJob[dep].Instances {
				for _, to := range j.Instances {
					if err := g.topology.AddEdge(from.Key(), to.Key()); err != nil {
						return nil, fmt.Errorf("linking instance %q to %q: %w", from.Key(), to.Key(), err)
					}
					edges++
				}
			}
		}
	}
	if err := g.topology.DetectCycles(); err != nil {
		return nil, asCycleError(err, func(key string) string { return g.byKey[key].Job })
	}

	logger.Debug("Run graph built.", "instances", len(g.instances), "edges", edges)
	return g, nil
}

func asCycleError(err error, jobOf func(string) string) error {
	var cycle *dag.CycleError
	if !errors.As(err, &cycle) {
		return err
	}
	jobs := make([]string, 0, len(cycle.Path))
	for _, id := range cycle.Path {
		jobs = append(jobs, jobOf(id))
	}
	return &CycleError{Jobs: jobs}
}

// Jobs returns all jobs in declaration order, including zero-instance ones.
func (g *RunGraph) Jobs() []*model.Job {
	return g.jobs
}

// Instances returns all instances in job declaration, then expansion, order.
func (g *RunGraph) Instances() []*model.Instance {
	return g.instances
}

// Len returns the number of instances.
func (g *RunGraph) Len() int {
	return len(g.instances)
}

// Instance looks up an instance by its key.
func (g *RunGraph) Instance(key string) (*model.Instance, bool) {
	inst, ok := g.byKey[key]
	return inst, ok
}

// Dependencies returns the instances key waits for.
func (g *RunGraph) Dependencies(key string) []*model.Instance {
	ids, err := g.topology.Dependencies(key)
	if err != nil {
		return nil
	}
	return g.resolve(ids)
}

// Dependents returns the instances waiting for key.
func (g *RunGraph) Dependents(key string) []*model.Instance {
	ids, err := g.topology.Dependents(key)
	if err != nil {
		return nil
	}
	return g.resolve(ids)
}

// JobOrder returns job identifiers in a valid execution order.
func (g *RunGraph) JobOrder() []string {
	order, err := g.jobGraph.TopologicalSort()
	if err != nil {
		// Build already rejected cycles.
		panic(fmt.Sprintf("graph: job graph became cyclic: %v", err))
	}
	return order
}

// ValidatePools checks that every instance targets one of the given pools.
func (g *RunGraph) ValidatePools(pools []string) error {
	for _, inst := range g.instances {
		if !slices.Contains(pools, inst.Pool) {
			return &UnknownPoolError{Instance: inst.Key(), Pool: inst.Pool}
		}
	}
	return nil
}

func (g *RunGraph) resolve(ids []string) []*model.Instance {
	out := make([]*model.Instance, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.byKey[id])
	}
	return out
}
