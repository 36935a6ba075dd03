package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// OutputStore persists step output.
type OutputStore interface {
	// Open returns a writer for one step's output and a reference to where
	// it ends up. An empty reference means the output is not kept.
	Open(runID, instance string, index int, step string) (io.WriteCloser, string, error)
}

// FileStore writes each step to <dir>/<run>/<instance>/<index>_<step>.log.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Open implements OutputStore.
func (s *FileStore) Open(runID, instance string, index int, step string) (io.WriteCloser, string, error) {
	dir := filepath.Join(s.dir, sanitize(runID), sanitize(instance))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%03d_%s.log", index, sanitize(step)))
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create output file: %w", err)
	}
	return f, path, nil
}

// NopStore discards output.
type NopStore struct{}

// Open implements OutputStore.
func (NopStore) Open(string, string, int, string) (io.WriteCloser, string, error) {
	return nopCloser{io.Discard}, "", nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// sanitize keeps characters that are safe in file names and replaces the
// rest with '_'.
func sanitize(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	clean = strings.Trim(clean, "._")
	if clean == "" {
		return "step"
	}
	return clean
}

// Tail is a writer that keeps the last Limit bytes written to it. It is
// safe for concurrent use.
type Tail struct {
	limit int

	mu        sync.Mutex
	buf       []byte
	truncated bool
}

// NewTail creates a Tail holding at most limit bytes.
func NewTail(limit int) *Tail {
	return &Tail{limit: limit}
}

// Write implements io.Writer.
func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
	return len(p), nil
}

// String returns the retained bytes, prefixed with a marker when earlier
// output was dropped.
func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.truncated {
		return "...\n" + string(t.buf)
	}
	return string(t.buf)
}
