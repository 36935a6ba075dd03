package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Definition is the unified, format-agnostic representation of a pipeline.
// It is created once by a Loader and treated as read-only afterwards.
type Definition struct {
	Name       string
	Parameters []*Parameter
	Variables  []*Variable
	Templates  map[string]*Template
	Jobs       []*JobTemplate
}

// Parameter declares a pipeline (or template) input.
type Parameter struct {
	Name        string
	Description string
	Type        cty.Type
	// Default is used when neither a pinned value nor an override is given.
	Default hcl.Expression
	// Value pins the parameter; it wins over caller overrides.
	Value hcl.Expression
	// Values, when set, is the list of allowed values.
	Values hcl.Expression
	Secret bool
}

// Variable is a named expression. Order matters: a variable may refer to
// the ones declared before it.
type Variable struct {
	Name string
	Expr hcl.Expression
}

// JobTemplate is a job as declared, before matrix expansion.
type JobTemplate struct {
	ID              string
	DisplayName     hcl.Expression
	Pool            hcl.Expression
	Condition       hcl.Expression
	DependsOn       []string
	Matrix          *Matrix
	Variables       []*Variable
	Steps           []*StepTemplate
	ContinueOnError hcl.Expression
	TimeoutMinutes  hcl.Expression
}

// Matrix is a list of axis sets. A nil *Matrix means the job has no matrix
// at all; a non-nil Matrix with no sets expands to zero instances.
type Matrix struct {
	Sets []*AxisSet
}

// AxisSet is a group of axes whose cross-product contributes instances when
// its guard holds.
type AxisSet struct {
	Guard   hcl.Expression
	Axes    []*Axis
	Exclude []map[string]string
}

// Axis is a named, ordered list of values. Values evaluates to a list or
// tuple whose elements are scalars or objects of variable bindings.
type Axis struct {
	Name   string
	Values hcl.Expression
}

// StepKind distinguishes scripts from template references.
type StepKind string

const (
	StepKindScript   StepKind = "script"
	StepKindTemplate StepKind = "template"
)

// StepTemplate is a step as declared.
type StepTemplate struct {
	Kind            StepKind
	ID              string
	Name            string
	Command         hcl.Expression
	Reference       string
	Parameters      []*Variable
	Condition       hcl.Expression
	Env             hcl.Expression
	ContinueOnError hcl.Expression
	TimeoutMinutes  hcl.Expression
}

// Template is a reusable, parameterized list of steps.
type Template struct {
	Name       string
	Parameters []*Parameter
	Steps      []*StepTemplate
}
