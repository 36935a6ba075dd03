package agent

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellAgent_Run(t *testing.T) {
	testCases := []struct {
		name         string
		cmd          Command
		wantExitCode int
		wantOutput   string
	}{
		{
			name:       "success captures output",
			cmd:        Command{Script: "echo hello"},
			wantOutput: "hello\n",
		},
		{
			name:         "non-zero exit is not an error",
			cmd:          Command{Script: "echo oops >&2; exit 3"},
			wantExitCode: 3,
			wantOutput:   "oops\n",
		},
		{
			name:       "env is applied",
			cmd:        Command{Script: `echo "$PIPEGRID_TEST_CHANNEL"`, Env: map[string]string{"PIPEGRID_TEST_CHANNEL": "nightly"}},
			wantOutput: "nightly\n",
		},
		{
			name:       "multi-line scripts",
			cmd:        Command{Script: "a=1\nb=2\necho $((a+b))"},
			wantOutput: "3\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			var out bytes.Buffer
			tc.cmd.Output = &out
			a := NewShellAgent("local-1", "", "")

			// Act
			res, err := a.Run(context.Background(), tc.cmd)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tc.wantExitCode, res.ExitCode)
			assert.Equal(t, tc.wantOutput, out.String())
		})
	}
}

func TestShellAgent_WorkDir(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	var out bytes.Buffer

	_, err = NewShellAgent("local-1", "sh", dir).Run(context.Background(), Command{Script: "pwd -P", Output: &out})

	require.NoError(t, err)
	assert.Equal(t, dir+"\n", out.String())
}

func TestShellAgent_Timeout(t *testing.T) {
	a := NewShellAgent("local-1", "", "")
	start := time.Now()

	res, err := a.Run(context.Background(), Command{Script: "sleep 5", Timeout: 100 * time.Millisecond})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestShellAgent_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := NewShellAgent("local-1", "", "").Run(ctx, Command{Script: "sleep 5"})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestShellAgent_MissingShell(t *testing.T) {
	_, err := NewShellAgent("local-1", "/nonexistent/shell", "").Run(context.Background(), Command{Script: "true"})

	assert.ErrorContains(t, err, "failed to start")
}
