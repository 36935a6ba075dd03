package agent

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDockerAgent needs a reachable docker daemon and runs only when
// PIPEGRID_DOCKER_TESTS is set.
func TestDockerAgent(t *testing.T) {
	if os.Getenv("PIPEGRID_DOCKER_TESTS") == "" {
		t.Skip("set PIPEGRID_DOCKER_TESTS to run docker agent tests")
	}
	cli, err := NewDockerClient()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	a := NewDockerAgent("docker-1", cli, DockerOptions{Image: "alpine:3.20"})
	t.Cleanup(func() { _ = a.Close() })

	var out bytes.Buffer
	res, err := a.Run(context.Background(), Command{
		Script: `echo "$GREETING"; exit 4`,
		Env:    map[string]string{"GREETING": "hi"},
		Output: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.ExitCode)
	assert.Equal(t, "hi\n", out.String())

	_, err = a.Run(context.Background(), Command{Script: "sleep 31 & wait", Timeout: 200 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The interrupted command and its children must not outlive the timeout.
	assert.Eventually(t, func() bool {
		res, err := a.Run(context.Background(), Command{Script: "! pgrep -f 'sleep [3]1'"})
		return err == nil && res.ExitCode == 0
	}, 5*time.Second, 100*time.Millisecond)
}

func TestExecCommand(t *testing.T) {
	testCases := []struct {
		name   string
		script string
	}{
		{name: "plain", script: "make test"},
		{name: "quotes and newlines", script: "echo \"it's\"\nexit 3"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := execCommand("sh", "/tmp/x.pid", tc.script)

			require.Len(t, got, 6)
			assert.Equal(t, []string{"sh", "-c", execScript, "/tmp/x.pid", "sh"}, got[:5])
			assert.Equal(t, tc.script, got[5], "script is passed verbatim")
		})
	}
}
