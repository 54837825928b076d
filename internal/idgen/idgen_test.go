package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_NextIsMonotonicCounter(t *testing.T) {
	gen, err := New(1)
	require.NoError(t, err)

	_, c1 := gen.Next()
	_, c2 := gen.Next()
	assert.Less(t, c1, c2)
}
