package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	assert.False(t, IsEnabled())
	assert.Nil(t, GetRegistry())

	samples, err := Snapshot()
	require.NoError(t, err)
	assert.Nil(t, samples)

	reg := InitRegistry()
	require.NotNil(t, reg)
	assert.True(t, IsEnabled())
	assert.Same(t, reg, GetRegistry())
	assert.Same(t, reg, InitRegistry())

	// Runtime collectors are registered but are not kvcontainer series.
	samples, err = Snapshot()
	require.NoError(t, err)
	assert.Empty(t, samples)

	Reset()
	assert.False(t, IsEnabled())
}
