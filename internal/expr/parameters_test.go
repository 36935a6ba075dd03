package expr

import (
	"context"
	"testing"

	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestResolveParameters_Precedence(t *testing.T) {
	e := New()
	params := []*config.Parameter{
		{Name: "pinned", Type: cty.String, Value: Literal(cty.StringVal("fixed")), Default: Literal(cty.StringVal("d"))},
		{Name: "overridden", Type: cty.String, Default: Literal(cty.StringVal("d"))},
		{Name: "defaulted", Type: cty.Number, Default: Literal(cty.NumberIntVal(3))},
		{Name: "flag", Type: cty.Bool, Default: Literal(cty.False)},
	}

	got, err := e.ResolveParameters(params, map[string]string{
		"pinned":     "ignored",
		"overridden": "caller",
		"flag":       "true",
	})
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("fixed"), got["pinned"])
	assert.Equal(t, cty.StringVal("caller"), got["overridden"])
	assert.True(t, got["defaulted"].RawEquals(cty.NumberIntVal(3)))
	assert.Equal(t, cty.True, got["flag"])
}

func TestResolveParameters_Collections(t *testing.T) {
	e := New()
	listType, err := ParseType(context.Background(), "list(string)")
	require.NoError(t, err)

	params := []*config.Parameter{
		{Name: "targets", Type: listType},
		{Name: "anything"},
	}
	got, err := e.ResolveParameters(params, map[string]string{
		"targets":  `["x86", "arm"]`,
		"anything": "plain words",
	})
	require.NoError(t, err)
	assert.Equal(t, cty.ListVal([]cty.Value{cty.StringVal("x86"), cty.StringVal("arm")}), got["targets"])
	assert.Equal(t, cty.StringVal("plain words"), got["anything"])
}

func TestResolveParameters_UntypedOverrides(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want cty.Value
	}{
		{name: "version keeps trailing zero", raw: "1.70", want: cty.StringVal("1.70")},
		{name: "leading zeros", raw: "007", want: cty.StringVal("007")},
		{name: "bare word is not a variable", raw: "parameters", want: cty.StringVal("parameters")},
		{name: "bool word", raw: "true", want: cty.StringVal("true")},
		{name: "function call is not evaluated", raw: `upper("x")`, want: cty.StringVal(`upper("x")`)},
		{name: "quoted string", raw: `"hi"`, want: cty.StringVal("hi")},
		{name: "list", raw: `[1, 2]`, want: cty.TupleVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)})},
		{name: "object", raw: `{ arch = "arm" }`, want: cty.ObjectVal(map[string]cty.Value{"arch": cty.StringVal("arm")})},
		{name: "list with a variable stays a string", raw: `[parameters]`, want: cty.StringVal(`[parameters]`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			params := []*config.Parameter{{Name: "anything"}}

			// Act
			got, err := New().ResolveParameters(params, map[string]string{"anything": tc.raw})

			// Assert
			require.NoError(t, err)
			assert.True(t, tc.want.RawEquals(got["anything"]), "got %#v", got["anything"])
		})
	}
}

func TestResolveParameters_Errors(t *testing.T) {
	e := New()

	t.Run("missing value", func(t *testing.T) {
		_, err := e.ResolveParameters([]*config.Parameter{{Name: "token", Type: cty.String}}, nil)
		var evalErr *EvaluationError
		require.ErrorAs(t, err, &evalErr)
		assert.Contains(t, evalErr.Error(), `parameter "token"`)
	})

	t.Run("unknown override", func(t *testing.T) {
		_, err := e.ResolveParameters(nil, map[string]string{"nope": "1"})
		var evalErr *EvaluationError
		require.ErrorAs(t, err, &evalErr)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := e.ResolveParameters([]*config.Parameter{{Name: "n", Type: cty.Number}}, map[string]string{"n": "many"})
		var evalErr *EvaluationError
		require.ErrorAs(t, err, &evalErr)
		assert.Contains(t, evalErr.Detail, "does not match type number")
	})

	t.Run("value outside allowed set", func(t *testing.T) {
		allowed := Literal(cty.TupleVal([]cty.Value{cty.StringVal("stable"), cty.StringVal("beta")}))
		p := &config.Parameter{Name: "channel", Type: cty.String, Values: allowed, Default: Literal(cty.StringVal("stable"))}

		got, err := e.ResolveParameters([]*config.Parameter{p}, map[string]string{"channel": "beta"})
		require.NoError(t, err)
		assert.Equal(t, cty.StringVal("beta"), got["channel"])

		_, err = e.ResolveParameters([]*config.Parameter{p}, map[string]string{"channel": "nightly"})
		var evalErr *EvaluationError
		require.ErrorAs(t, err, &evalErr)
		assert.Contains(t, evalErr.Detail, "not one of the allowed values")
	})
}

func TestBindArguments(t *testing.T) {
	e := New()
	caller := NewScope().WithMap(RootMatrix, map[string]cty.Value{"os": cty.StringVal("macos")})
	params := []*config.Parameter{
		{Name: "target", Type: cty.String},
		{Name: "release", Type: cty.Bool, Default: Literal(cty.False)},
	}

	got, err := e.BindArguments(`template "build"`, params, []*config.Variable{
		{Name: "target", Expr: mustExpr(t, `"${matrix.os}-x64"`)},
	}, caller)
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("macos-x64"), got["target"])
	assert.Equal(t, cty.False, got["release"])

	_, err = e.BindArguments(`template "build"`, params, []*config.Variable{
		{Name: "target", Expr: mustExpr(t, `"x"`)},
		{Name: "bogus", Expr: mustExpr(t, `1`)},
	}, caller)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `template "build" argument "bogus"`)
}

func TestRedacted(t *testing.T) {
	params := []*config.Parameter{{Name: "token", Secret: true}, {Name: "channel"}}
	out := Redacted(params, map[string]cty.Value{
		"token":   cty.StringVal("s3cr3t"),
		"channel": cty.StringVal("stable"),
	})
	assert.Equal(t, map[string]string{"token": "(sensitive)", "channel": "stable"}, out)
}
