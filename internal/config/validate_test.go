package config

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func literal(s string) hcl.Expression {
	return &hclsyntax.LiteralValueExpr{Val: cty.StringVal(s)}
}

func script(id, cmd string) *StepTemplate {
	return &StepTemplate{Kind: StepKindScript, ID: id, Command: literal(cmd)}
}

func TestDefinition_Validate(t *testing.T) {
	t.Run("valid definition", func(t *testing.T) {
		def := &Definition{
			Parameters: []*Parameter{{Name: "channel"}},
			Jobs: []*JobTemplate{
				{ID: "build", Steps: []*StepTemplate{script("compile", "make"), script("", "make test")}},
				{ID: "lint", DependsOn: []string{"build"}},
			},
		}
		require.NoError(t, def.Validate())
		assert.Equal(t, "lint", def.Job("lint").ID)
		assert.Nil(t, def.Job("missing"))
	})

	testCases := []struct {
		name    string
		def     *Definition
		wantErr string
	}{
		{
			name:    "duplicate job",
			def:     &Definition{Jobs: []*JobTemplate{{ID: "a"}, {ID: "a"}}},
			wantErr: `duplicate job identifier "a"`,
		},
		{
			name:    "invalid job id",
			def:     &Definition{Jobs: []*JobTemplate{{ID: "a b"}}},
			wantErr: "invalid job identifier",
		},
		{
			name:    "duplicate parameter",
			def:     &Definition{Parameters: []*Parameter{{Name: "x"}, {Name: "x"}}},
			wantErr: `duplicate parameter "x"`,
		},
		{
			name: "duplicate step id",
			def: &Definition{Jobs: []*JobTemplate{{
				ID:    "a",
				Steps: []*StepTemplate{script("s", "true"), script("s", "true")},
			}}},
			wantErr: `duplicate step id "s"`,
		},
		{
			name: "script without command",
			def: &Definition{Jobs: []*JobTemplate{{
				ID:    "a",
				Steps: []*StepTemplate{{Kind: StepKindScript}},
			}}},
			wantErr: "has no command",
		},
		{
			name: "template step without reference",
			def: &Definition{Jobs: []*JobTemplate{{
				ID:    "a",
				Steps: []*StepTemplate{{Kind: StepKindTemplate}},
			}}},
			wantErr: "empty template reference",
		},
		{
			name: "duplicate axis",
			def: &Definition{Jobs: []*JobTemplate{{
				ID: "a",
				Matrix: &Matrix{Sets: []*AxisSet{{
					Axes: []*Axis{{Name: "os"}, {Name: "os"}},
				}}},
			}}},
			wantErr: `duplicate axis "os"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
