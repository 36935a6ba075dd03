package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes all top-level blocks of one file.
type fileRoot struct {
	Name       string             `hcl:"name,optional"`
	Parameters []*parameterBlock  `hcl:"parameter,block"`
	Variables  []*attributesBlock `hcl:"variables,block"`
	Templates  []*templateBlock   `hcl:"template,block"`
	Jobs       []*jobBlock        `hcl:"job,block"`
}

type parameterBlock struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type,optional"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
	Value       hcl.Expression `hcl:"value,optional"`
	Values      hcl.Expression `hcl:"values,optional"`
	Secret      bool           `hcl:"secret,optional"`
}

// attributesBlock is a block of free-form, ordered attributes.
type attributesBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type templateBlock struct {
	Name       string            `hcl:"name,label"`
	Parameters []*parameterBlock `hcl:"parameter,block"`
	Steps      []*stepBlock      `hcl:"step,block"`
}

type jobBlock struct {
	ID              string             `hcl:"id,label"`
	Name            hcl.Expression     `hcl:"name,optional"`
	Pool            hcl.Expression     `hcl:"pool,optional"`
	Condition       hcl.Expression     `hcl:"condition,optional"`
	DependsOn       []string           `hcl:"depends_on,optional"`
	ContinueOnError hcl.Expression     `hcl:"continue_on_error,optional"`
	TimeoutMinutes  hcl.Expression     `hcl:"timeout_minutes,optional"`
	Variables       []*attributesBlock `hcl:"variables,block"`
	Matrix          []*matrixBlock     `hcl:"matrix,block"`
	Steps           []*stepBlock       `hcl:"step,block"`
}

type matrixBlock struct {
	Condition hcl.Expression `hcl:"condition,optional"`
	Exclude   hcl.Expression `hcl:"exclude,optional"`
	Axes      []*axisBlock   `hcl:"axis,block"`
}

type axisBlock struct {
	Name   string         `hcl:"name,label"`
	Values hcl.Expression `hcl:"values"`
}

type stepBlock struct {
	ID              string             `hcl:"id,optional"`
	Name            string             `hcl:"name,optional"`
	Script          hcl.Expression     `hcl:"script,optional"`
	Template        string             `hcl:"template,optional"`
	Condition       hcl.Expression     `hcl:"condition,optional"`
	Env             hcl.Expression     `hcl:"env,optional"`
	ContinueOnError hcl.Expression     `hcl:"continue_on_error,optional"`
	TimeoutMinutes  hcl.Expression     `hcl:"timeout_minutes,optional"`
	Parameters      []*attributesBlock `hcl:"parameters,block"`
}
