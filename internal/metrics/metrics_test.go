package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/specialistvlad/pipegrid/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	// Arrange
	m := New()

	// Act
	m.InstanceStarted()
	m.InstanceStarted()
	m.InstanceFinished("test", model.StatusSucceeded, true, 3*time.Second)
	m.InstanceFinished("deploy", model.StatusSkipped, false, 0)
	m.StepFinished(model.OutcomeSuccess)
	m.StepFinished(model.OutcomeSuccess)
	m.AgentUnavailable("linux")

	// Assert
	assert.Equal(t, 1.0, testutil.ToFloat64(m.instances.WithLabelValues("test", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.instances.WithLabelValues("deploy", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.running))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.steps.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.agentUnavailable.WithLabelValues("linux")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.AgentUnavailable("default")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `pipegrid_agent_unavailable_total{pool="default"} 1`))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.InstanceStarted()
		m.InstanceFinished("a", model.StatusFailed, true, time.Second)
		m.StepFinished(model.OutcomeFailure)
		m.AgentUnavailable("p")
	})
	assert.Nil(t, m.Registry())
}
