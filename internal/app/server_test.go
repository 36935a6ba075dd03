package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tu "github.com/specialistvlad/pipegrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServer_Idle(t *testing.T) {
	h := newHarness(t, map[string]string{"ci.yaml": ciPipeline}, "ci.yaml", nil, nil)
	routes := h.app.Handler()

	t.Run("health", func(t *testing.T) {
		rec := get(t, routes, http.MethodGet, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK\n", rec.Body.String())
	})

	t.Run("abort without a run", func(t *testing.T) {
		rec := get(t, routes, http.MethodPost, "/abort")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("abort needs POST", func(t *testing.T) {
		rec := get(t, routes, http.MethodGet, "/abort")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("empty status", func(t *testing.T) {
		rec := get(t, routes, http.MethodGet, "/status")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got statusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "run-1", got.RunID)
		assert.False(t, got.Running)
		assert.Empty(t, got.Instances)
	})
}

func TestServer_AfterRun(t *testing.T) {
	// Arrange
	h := newHarness(t, map[string]string{"ci.yaml": ciPipeline}, "ci.yaml",
		map[string]tu.Behavior{"make test": tu.Exit(1, "")}, nil)
	_, err := h.app.Run(context.Background())
	require.NoError(t, err)
	routes := h.app.Handler()

	t.Run("status lists every instance", func(t *testing.T) {
		rec := get(t, routes, http.MethodGet, "/status")
		require.Equal(t, http.StatusOK, rec.Code)

		var got statusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got.Instances, 4)
		byID := map[string]instanceStatus{}
		for _, inst := range got.Instances {
			byID[inst.ID] = inst
		}
		assert.Equal(t, "succeeded", byID["build[os=linux]"].Status.String())
		assert.Equal(t, "failed", byID["test"].Status.String())
		assert.NotEmpty(t, byID["test"].Error)
		assert.Equal(t, "upstream", string(byID["deploy"].Reason))
	})

	t.Run("metrics", func(t *testing.T) {
		rec := get(t, routes, http.MethodGet, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "pipegrid_instances_total")
		assert.Contains(t, rec.Body.String(), "pipegrid_steps_total")
	})
}

func TestServer_Lifecycle(t *testing.T) {
	// Arrange
	h := newHarness(t, map[string]string{"ci.yaml": ciPipeline}, "ci.yaml", nil, nil)
	ctx := context.Background()

	// Act
	require.NoError(t, h.app.startServer(ctx, "127.0.0.1:0"))
	h.app.mu.Lock()
	srv := h.app.server
	h.app.mu.Unlock()
	require.NotNil(t, srv)

	// Assert
	require.Eventually(t, func() bool {
		return strings.Contains(h.logs.String(), "Control server starting")
	}, 2*time.Second, 10*time.Millisecond)

	h.app.closeServer(ctx)
	h.app.mu.Lock()
	assert.Nil(t, h.app.server)
	h.app.mu.Unlock()
	h.app.closeServer(ctx)
}

func TestServer_PortInUse(t *testing.T) {
	busy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "busy")
	}))
	defer busy.Close()

	h := newHarness(t, map[string]string{"ci.yaml": ciPipeline}, "ci.yaml", nil, nil)
	err := h.app.startServer(context.Background(), busy.Listener.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start control server")
}
