package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferences(t *testing.T) {
	ex := mustTemplate(t, `${upper(matrix.os)}-${lower(parameters.channel)}-${matrix.os}`)
	traversals, functions := References(ex, nil)

	keys := make([]string, 0, len(traversals))
	for _, tr := range traversals {
		keys = append(keys, TraversalKey(tr))
	}
	assert.Equal(t, []string{"matrix.os", "parameters.channel"}, keys)
	assert.Equal(t, []string{"lower", "upper"}, functions)
}

func TestIsRuntime(t *testing.T) {
	testCases := []struct {
		src  string
		want bool
	}{
		{src: `matrix.os == "linux"`, want: false},
		{src: `steps.build.outcome == "success"`, want: true},
		{src: `job.status == "success" && parameters.coverage`, want: true},
		{src: `true`, want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRuntime(mustExpr(t, tc.src)))
		})
	}
}

func TestEvaluator_Check(t *testing.T) {
	e := New()

	require.NoError(t, e.Check(mustExpr(t, `steps.a.outcome == "success"`), RootSteps, RootJob))
	require.NoError(t, e.Check(nil))

	err := e.Check(mustExpr(t, `stepz.a.outcome == "success"`), RootSteps, RootJob)
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Detail, `undefined root "stepz"`)

	err = e.Check(mustExpr(t, `frobnicate(steps.a)`), RootSteps)
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Detail, `unknown function "frobnicate"`)
}
