// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/expr"
	"github.com/specialistvlad/pipegrid/internal/nodeid"
)

// DefaultPool is used when a job names no pool.
const DefaultPool = "default"

// Instance is one concrete, runnable expansion of a job template. It is
// immutable once the expander returns it; status lives with the scheduler.
type Instance struct {
	ID          nodeid.Address
	Job         string
	DisplayName string
	// Env is the resolved variable environment: global variables, then job
	// variables, then matrix bindings.
	Env   map[string]string
	Steps []*Step
	Pool  string

	ContinueOnError bool
	// Timeout is the wall-clock budget for the whole instance; zero means none.
	Timeout time.Duration
	// Skip is set when the job condition evaluated false.
	Skip bool
}

// Key returns the canonical identifier string.
func (i *Instance) Key() string {
	return i.ID.String()
}

// Step is a concrete step of an instance.
type Step struct {
	Index   int
	ID      string
	Name    string
	Command string
	Env     map[string]string
	// Skip is set when a static condition evaluated false.
	Skip bool
	// Conditions are deferred predicates; all must hold for the step to run.
	Conditions      []Condition
	ContinueOnError bool
	Timeout         time.Duration
}

// Condition is a runtime predicate along with the scope it was declared in.
type Condition struct {
	Expr  hcl.Expression
	Scope expr.Scope
}

// Job pairs a job template with the instances expanded from it. A job may
// legitimately have zero instances.
type Job struct {
	Template  *config.JobTemplate
	Instances []*Instance
}
