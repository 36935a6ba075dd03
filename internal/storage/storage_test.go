package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Open(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	s := NewFileStore(dir)

	// Act
	w, ref, err := s.Open("run-1", "test[os=linux,channel=nightly]", 2, "cargo test --all")
	require.NoError(t, err)
	_, err = io.WriteString(w, "ok\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Assert
	assert.Equal(t, filepath.Join(dir, "run-1", "test_os_linux_channel_nightly", "002_cargo_test_--all.log"), ref)
	content, err := os.ReadFile(ref)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(content))
}

func TestNopStore(t *testing.T) {
	w, ref, err := NopStore{}.Open("run", "a", 0, "b")
	require.NoError(t, err)
	assert.Empty(t, ref)
	_, err = fmt.Fprint(w, "dropped")
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
}

func TestSanitize(t *testing.T) {
	testCases := map[string]string{
		"build":        "build",
		"../../etc":    "etc",
		"..":           "step",
		"a/b":          "a_b",
		"":             "step",
		"test[os=mac]": "test_os_mac",
	}
	for in, want := range testCases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, sanitize(in))
		})
	}
}

func TestTail(t *testing.T) {
	tail := NewTail(5)

	fmt.Fprint(tail, "abc")
	assert.Equal(t, "abc", tail.String())

	fmt.Fprint(tail, "defgh")
	assert.Equal(t, "...\ndefgh", tail.String())
}
