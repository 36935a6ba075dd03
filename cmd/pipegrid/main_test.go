package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/pipegrid/internal/cli"
	tu "github.com/specialistvlad/pipegrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Pipeline(t *testing.T) {
	testCases := []struct {
		name     string
		script   string
		wantCode int
		wantStat string
	}{
		{name: "success", script: "echo hello", wantCode: cli.ExitOK, wantStat: "succeeded"},
		{name: "failure", script: "exit 3", wantCode: cli.ExitFailure, wantStat: "failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			dir := tu.WriteFiles(t, map[string]string{"ci.yaml": `
name: smoke
jobs:
  greet:
    matrix:
      who: [alice, bob]
    steps:
      - ` + tc.script + `
`})
			out, logs := &bytes.Buffer{}, &tu.SafeBuffer{}

			// Act
			err := run(context.Background(), out, logs, []string{filepath.Join(dir, "ci.yaml")})

			// Assert
			assert.Equal(t, tc.wantCode, cli.ExitCode(err), logs.String())
			var rep map[string]any
			require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
			assert.Equal(t, tc.wantStat, rep["status"])
			assert.Equal(t, "smoke", rep["pipeline"])
		})
	}
}

func TestRun_InvalidDefinition(t *testing.T) {
	// Arrange
	dir := tu.WriteFiles(t, map[string]string{"ci.yaml": `
name: broken
jobs:
  a:
    dependsOn: missing
    steps: [echo a]
`})

	// Act
	err := run(context.Background(), &bytes.Buffer{}, &tu.SafeBuffer{}, []string{filepath.Join(dir, "ci.yaml")})

	// Assert
	require.Error(t, err)
	assert.Equal(t, cli.ExitUsage, cli.ExitCode(err))
	assert.Contains(t, err.Error(), "missing")
}

func TestRun_ShouldExit(t *testing.T) {
	// Arrange
	out := &bytes.Buffer{}

	// Act
	err := run(context.Background(), out, &tu.SafeBuffer{}, []string{"-h"})

	// Assert
	require.NoError(t, err, "run() should return a nil error when help is requested")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	// Arrange
	args := []string{"--this-is-not-a-valid-flag"}

	// Act
	err := run(context.Background(), &bytes.Buffer{}, &tu.SafeBuffer{}, args)

	// Assert
	require.Error(t, err, "run() should return an error when argument parsing fails")
	assert.Equal(t, cli.ExitUsage, cli.ExitCode(err))
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_Cancelled(t *testing.T) {
	// Arrange
	dir := tu.WriteFiles(t, map[string]string{"ci.yaml": `
name: slow
jobs:
  wait:
    steps: [sleep 30]
`})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := &bytes.Buffer{}

	// Act
	err := run(ctx, out, &tu.SafeBuffer{}, []string{filepath.Join(dir, "ci.yaml")})

	// Assert
	assert.Equal(t, cli.ExitFailure, cli.ExitCode(err))
	var rep map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, true, rep["aborted"])
}
