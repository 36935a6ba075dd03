package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Transitions(t *testing.T) {
	testCases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusBlocked, true},
		{StatusPending, StatusReady, true},
		{StatusPending, StatusSkipped, true},
		{StatusBlocked, StatusReady, true},
		{StatusBlocked, StatusSkipped, true},
		{StatusReady, StatusRunning, true},
		{StatusReady, StatusSkipped, true},
		{StatusRunning, StatusSucceeded, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusTimedOut, true},
		{StatusBlocked, StatusPending, false},
		{StatusRunning, StatusSkipped, false},
		{StatusPending, StatusRunning, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusSkipped, StatusReady, false},
	}

	for _, tc := range testCases {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransition(tc.to))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range []Status{StatusSucceeded, StatusFailed, StatusSkipped, StatusTimedOut} {
		assert.True(t, s.IsTerminal(), s.String())
	}
	for _, s := range []Status{StatusPending, StatusBlocked, StatusReady, StatusRunning} {
		assert.False(t, s.IsTerminal(), s.String())
	}
}

func TestStatus_Text(t *testing.T) {
	b, err := json.Marshal(map[string]Status{"s": StatusTimedOut})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"timed_out"}`, string(b))

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("skipped")))
	assert.Equal(t, StatusSkipped, s)
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
	assert.Equal(t, "status(42)", Status(42).String())
}
