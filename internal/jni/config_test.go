package jni

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	c := NewConfig()
	require.True(t, c.ReadBarrier())
	require.False(t, c.HeapPoisoning())
	require.False(t, c.RuntimeDebugChecks())
}

func TestConfig_With(t *testing.T) {
	base := NewConfig()

	c := base.WithReadBarrier(false).WithHeapPoisoning(true).WithRuntimeDebugChecks(true)
	require.False(t, c.ReadBarrier())
	require.True(t, c.HeapPoisoning())
	require.True(t, c.RuntimeDebugChecks())

	// base is unchanged.
	require.Equal(t, NewConfig(), base)
}
