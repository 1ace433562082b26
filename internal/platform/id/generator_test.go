package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomGenerator_NewID(t *testing.T) {
	t.Parallel()

	gen := NewRandomGenerator("evt_")

	first, err := gen.NewID()
	require.NoError(t, err)
	second, err := gen.NewID()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, "evt_"))
	assert.Len(t, first, len("evt_")+32)
	assert.NotEqual(t, first, second)
}
