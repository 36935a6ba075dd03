package inmemorystore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/pipegrid/internal/model"
	"github.com/specialistvlad/pipegrid/internal/nodeid"
	"github.com/specialistvlad/pipegrid/internal/nodestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) nodeid.Address {
	t.Helper()
	addr, err := nodeid.Parse(raw)
	require.NoError(t, err)
	return *addr
}

func TestSetAndGetStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	addr := mustParse(t, "test[os=linux]")
	require.NoError(t, s.Register(ctx, addr))

	// Registered instances start pending
	status, err := s.GetStatus(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)

	// Running stamps the start, terminal stamps the finish
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	require.NoError(t, s.SetStatus(ctx, addr, model.StatusRunning, model.SkipNone))
	clock = clock.Add(90 * time.Second)
	require.NoError(t, s.SetStatus(ctx, addr, model.StatusSucceeded, model.SkipNone))

	rec, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, rec.Status)
	assert.Equal(t, 90*time.Second, rec.Duration())
}

func TestSkippedNeverStarted(t *testing.T) {
	s := New()
	ctx := context.Background()
	addr := mustParse(t, "deploy")
	require.NoError(t, s.Register(ctx, addr))

	require.NoError(t, s.SetStatus(ctx, addr, model.StatusSkipped, model.SkipUpstream))

	rec, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, model.SkipUpstream, rec.Reason)
	assert.True(t, rec.Started.IsZero())
	assert.Zero(t, rec.Duration())
}

func TestStepResultsAndErrors(t *testing.T) {
	s := New()
	ctx := context.Background()
	addr := mustParse(t, "build")
	require.NoError(t, s.Register(ctx, addr))

	// No error recorded yet
	retrievedErr, err := s.GetError(ctx, addr)
	require.NoError(t, err)
	assert.Nil(t, retrievedErr)

	require.NoError(t, s.SetAgent(ctx, addr, "default-1"))
	require.NoError(t, s.AppendStepResult(ctx, addr, model.StepResult{Index: 0, Outcome: model.OutcomeSuccess}))
	require.NoError(t, s.AppendStepResult(ctx, addr, model.StepResult{Index: 1, Outcome: model.OutcomeFailure, ExitCode: 2}))
	expectedErr := errors.New("step 1 exited with 2")
	require.NoError(t, s.SetError(ctx, addr, expectedErr))

	rec, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "default-1", rec.Agent)
	require.Len(t, rec.Steps, 2)
	assert.Equal(t, 2, rec.Steps[1].ExitCode)

	retrievedErr, err = s.GetError(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, expectedErr, retrievedErr)

	// Snapshots do not alias the stored slice
	rec.Steps[0].Outcome = model.OutcomeCancelled
	again, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, again.Steps[0].Outcome)
}

func TestUnknownInstance(t *testing.T) {
	s := New()
	ctx := context.Background()
	addr := mustParse(t, "ghost")

	_, err := s.GetStatus(ctx, addr)
	assert.ErrorIs(t, err, nodestore.ErrUnknownInstance)
	assert.ErrorIs(t, s.SetStatus(ctx, addr, model.StatusReady, model.SkipNone), nodestore.ErrUnknownInstance)

	require.NoError(t, s.Register(ctx, addr))
	assert.ErrorContains(t, s.Register(ctx, addr), "already registered")
}

func TestListKeepsRegistrationOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	ids := []nodeid.Address{mustParse(t, "test[os=windows]"), mustParse(t, "build"), mustParse(t, "test[os=linux]")}
	require.NoError(t, s.Register(ctx, ids...))

	recs, err := s.List(ctx)
	require.NoError(t, err)

	var got []string
	for _, r := range recs {
		got = append(got, r.ID.String())
	}
	assert.Equal(t, []string{"test[os=windows]", "build", "test[os=linux]"}, got)
}

// TestStore_ConcurrentAccess verifies that the store can be safely accessed by
// multiple goroutines simultaneously without data races or lost writes.
func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	numGoroutines := 100
	var wg sync.WaitGroup

	addrs := make([]nodeid.Address, numGoroutines)
	for i := range addrs {
		addrs[i] = nodeid.New("job", nodeid.Binding{Axis: "n", Label: fmt.Sprint(i)})
	}
	require.NoError(t, s.Register(ctx, addrs...))

	// Phase 1: Concurrent Writes
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.SetStatus(ctx, addrs[i], model.StatusFailed, model.SkipNone))
			assert.NoError(t, s.AppendStepResult(ctx, addrs[i], model.StepResult{Index: i}))
			assert.NoError(t, s.SetError(ctx, addrs[i], fmt.Errorf("error for instance %d", i)))
			_, _ = s.List(ctx)
		}(i)
	}
	wg.Wait()

	// Phase 2: Concurrent Reads / Verification
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			rec, err := s.Get(ctx, addrs[i])
			assert.NoError(t, err)
			assert.Equal(t, model.StatusFailed, rec.Status, "mismatched status for instance %d", i)
			if assert.Len(t, rec.Steps, 1) {
				assert.Equal(t, i, rec.Steps[0].Index)
			}
			assert.EqualError(t, rec.Err, fmt.Sprintf("error for instance %d", i))
		}(i)
	}
	wg.Wait()
}
