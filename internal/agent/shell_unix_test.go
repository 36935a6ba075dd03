//go:build unix

package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processGone reports whether pid no longer runs. An unreaped zombie counts
// as gone.
func processGone(pid int) bool {
	if errors.Is(syscall.Kill(pid, 0), syscall.ESRCH) {
		return true
	}
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// The state follows the parenthesised command name.
	rest := string(stat[strings.LastIndexByte(string(stat), ')')+1:])
	return strings.HasPrefix(strings.TrimSpace(rest), "Z")
}

func TestShellAgent_TimeoutKillsChildren(t *testing.T) {
	// Arrange
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	a := NewShellAgent("local-1", "", "")
	start := time.Now()

	// Act
	_, err := a.Run(context.Background(), Command{
		Script:  "sleep 30 & echo $! > " + pidFile + "; wait; echo done",
		Timeout: 200 * time.Millisecond,
	})

	// Assert
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return processGone(pid) },
		2*time.Second, 20*time.Millisecond, "child %d survived the timeout", pid)
}
