package hcl_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/expr"
	"github.com/specialistvlad/pipegrid/internal/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const pipeline = `
name = "rust-ci"

parameter "channels" {
  type    = list(string)
  default = ["stable", "beta"]
}

parameter "nightly" {
  type    = bool
  default = false
}

variables {
  color = "always"
  flags = "--color ${variables.color}"
}

template "cargo" {
  parameter "command" {
    type = string
  }

  step {
    script = "cargo +${matrix.channel} ${parameters.command}"
  }
}

job "lint" {
  step {
    script = "cargo clippy"
  }
}

job "test" {
  name       = "test ${matrix.os} on ${matrix.channel}"
  depends_on = ["lint"]
  pool       = "linux"

  matrix {
    axis "os" {
      values = ["linux", "macos"]
    }
    axis "channel" {
      values = parameters.channels
    }
    exclude = [{ os = "macos", channel = "beta" }]
  }

  step {
    id       = "build"
    template = "cargo"
    parameters {
      command = "build"
    }
  }

  step {
    id                = "test"
    script            = "cargo test ${variables.flags}"
    env               = { RUST_BACKTRACE = "1" }
    continue_on_error = true
  }

  step {
    name      = "report"
    condition = steps.test.outcome == "failure"
    script    = "echo failed"
  }
}

job "nightly" {
  condition  = parameters.nightly
  depends_on = ["test"]

  step {
    script = "echo nightly"
  }
}
`

func parse(t *testing.T, src string) *config.Definition {
	t.Helper()
	def, err := NewLoader().Parse(context.Background(), "pipeline.hcl", []byte(src))
	require.NoError(t, err)
	return def
}

func TestParse_Structure(t *testing.T) {
	def := parse(t, pipeline)

	assert.Equal(t, "rust-ci", def.Name)
	require.Len(t, def.Parameters, 2)
	assert.Equal(t, cty.List(cty.String), def.Parameters[0].Type)
	assert.NotNil(t, def.Parameters[0].Default)
	assert.Nil(t, def.Parameters[0].Value, "omitted attributes stay nil")

	require.Len(t, def.Variables, 2)
	assert.Equal(t, []string{"color", "flags"}, []string{def.Variables[0].Name, def.Variables[1].Name})

	require.Len(t, def.Jobs, 3)
	test := def.Job("test")
	require.NotNil(t, test)
	assert.Equal(t, []string{"lint"}, test.DependsOn)
	require.Len(t, test.Matrix.Sets, 1)
	assert.Nil(t, test.Matrix.Sets[0].Guard)
	assert.Equal(t, []map[string]string{{"os": "macos", "channel": "beta"}}, test.Matrix.Sets[0].Exclude)
	require.Len(t, test.Steps, 3)
	assert.Equal(t, config.StepKindTemplate, test.Steps[0].Kind)
	assert.Equal(t, "cargo", test.Steps[0].Reference)
	assert.Len(t, test.Steps[0].Parameters, 1)
	assert.Nil(t, test.Steps[0].Condition)
	assert.NotNil(t, test.Steps[2].Condition)

	lint := def.Job("lint")
	assert.Nil(t, lint.Matrix)
	assert.Nil(t, lint.Pool)
	assert.Nil(t, lint.DisplayName)
}

func TestParse_Expands(t *testing.T) {
	def := parse(t, pipeline)
	eval := expr.New()
	params, err := eval.ResolveParameters(def.Parameters, nil)
	require.NoError(t, err)

	jobs, err := matrix.NewExpander(def, eval).ExpandAll(context.Background(), params)

	require.NoError(t, err)
	var keys []string
	for _, inst := range jobs[1].Instances {
		keys = append(keys, inst.Key())
	}
	assert.Equal(t, []string{
		"test[os=linux,channel=stable]",
		"test[os=linux,channel=beta]",
		"test[os=macos,channel=stable]",
	}, keys)

	inst := jobs[1].Instances[2]
	assert.Equal(t, "test macos on stable", inst.DisplayName)
	assert.Equal(t, "cargo +stable build", inst.Steps[0].Command)
	assert.Equal(t, "cargo test --color always", inst.Steps[1].Command)
	assert.Equal(t, map[string]string{"RUST_BACKTRACE": "1"}, inst.Steps[1].Env)
	assert.True(t, inst.Steps[1].ContinueOnError)

	assert.True(t, jobs[2].Instances[0].Skip, "nightly defaults to false")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "syntax error",
			src:  `job "a" {`,
			want: "failed to parse HCL file pipeline.hcl",
		},
		{
			name: "unknown block",
			src:  `stage "a" {}`,
			want: "failed to decode HCL file pipeline.hcl",
		},
		{
			name: "script and template",
			src:  "job \"a\" {\n step {\n script = \"x\"\n template = \"t\"\n }\n}\n",
			want: "step 0 has both script and template",
		},
		{
			name: "empty step",
			src:  "job \"a\" {\n step {\n }\n}\n",
			want: "step 0 needs a script or a template",
		},
		{
			name: "arguments on a script step",
			src:  "job \"a\" {\n step {\n script = \"x\"\n parameters {\n a = 1\n }\n }\n}\n",
			want: "parameters are only valid on template steps",
		},
		{
			name: "bad type",
			src:  "parameter \"p\" {\n type = tuple(string)\n}\n",
			want: `unknown type constructor function "tuple"`,
		},
		{
			name: "non-literal exclude",
			src:  "job \"a\" {\n matrix {\n axis \"os\" {\n values = [\"x\"]\n }\n exclude = parameters.x\n }\n step {\n script = \"x\"\n }\n}\n",
			want: "matrix exclude must be a literal list of objects",
		},
		{
			name: "duplicate job",
			src:  "job \"a\" {\n step {\n script = \"x\"\n }\n}\njob \"a\" {\n step {\n script = \"y\"\n }\n}\n",
			want: `duplicate job identifier "a"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLoader().Parse(context.Background(), "pipeline.hcl", []byte(tc.src))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_Directory(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	write := func(name, src string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	write("a_lint.hcl", "name = \"ci\"\njob \"lint\" {\n step {\n script = \"make lint\"\n }\n}\n")
	write("jobs/b_test.hcl", "job \"test\" {\n depends_on = [\"lint\"]\n step {\n script = \"make test\"\n }\n}\n")
	write("README.md", "not hcl")

	// Act
	def, err := NewLoader().Load(context.Background(), dir)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "ci", def.Name)
	require.Len(t, def.Jobs, 2)
	assert.Equal(t, "lint", def.Jobs[0].ID)
	assert.Equal(t, "test", def.Jobs[1].ID)
}

func TestLoad_Missing(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))

	assert.ErrorIs(t, err, os.ErrNotExist)
}
