package clipboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyToMemory(t *testing.T) {
	t.Cleanup(UseMemory())

	require.NoError(t, Copy("buy milk"))
	got, err := Read()
	require.NoError(t, err)
	assert.Equal(t, "buy milk", got)
	assert.True(t, Available())
}

func TestCopyEmpty(t *testing.T) {
	t.Cleanup(UseMemory())

	assert.ErrorIs(t, Copy("  \n"), ErrEmpty)
}
