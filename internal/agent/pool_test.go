package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_AcquireRelease(t *testing.T) {
	// Arrange
	a1 := NewShellAgent("p-1", "", "")
	a2 := NewShellAgent("p-2", "", "")
	p := NewPool("p", a1, a2)

	// Act
	first, err := p.TryAcquire()
	require.NoError(t, err)
	second, err := p.TryAcquire()
	require.NoError(t, err)
	_, err = p.TryAcquire()

	// Assert
	assert.ErrorIs(t, err, ErrAgentUnavailable)
	assert.Equal(t, 2, p.Busy())
	assert.NotSame(t, first, second)

	p.Release(first)
	again, err := p.TryAcquire()
	require.NoError(t, err)
	assert.Same(t, first, again)

	assert.Panics(t, func() {
		p.Release(first)
		p.Release(first)
	})
}

func TestPool_EmptyPoolIsUnavailable(t *testing.T) {
	_, err := NewPool("empty").TryAcquire()
	assert.ErrorIs(t, err, ErrAgentUnavailable)
}

func TestNewPools(t *testing.T) {
	t.Run("shell pools", func(t *testing.T) {
		ps, err := NewPools([]PoolSpec{
			{Name: "linux", Size: 3},
			{Name: "default", Size: 1, Kind: KindShell, Shell: "bash"},
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = ps.Close() })

		assert.Equal(t, []string{"default", "linux"}, ps.Names())
		assert.Equal(t, 4, ps.Capacity())
		linux, ok := ps.Get("linux")
		require.True(t, ok)
		a, err := linux.TryAcquire()
		require.NoError(t, err)
		assert.Equal(t, "linux-1", a.Name())
		res, err := a.Run(context.Background(), Command{Script: "exit 0"})
		require.NoError(t, err)
		assert.Zero(t, res.ExitCode)
	})

	testCases := []struct {
		name    string
		specs   []PoolSpec
		wantErr string
	}{
		{name: "unnamed", specs: []PoolSpec{{Size: 1}}, wantErr: "pool without a name"},
		{name: "duplicate", specs: []PoolSpec{{Name: "a", Size: 1}, {Name: "a", Size: 1}}, wantErr: `pool "a" is declared twice`},
		{name: "zero size", specs: []PoolSpec{{Name: "a"}}, wantErr: "size must be at least 1"},
		{name: "unknown kind", specs: []PoolSpec{{Name: "a", Size: 1, Kind: "vm"}}, wantErr: `unknown agent kind "vm"`},
		{name: "docker without image", specs: []PoolSpec{{Name: "a", Size: 1, Kind: KindDocker}}, wantErr: "docker pools need an image"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPools(tc.specs)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
