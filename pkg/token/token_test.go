package token

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	v, err := Generate()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(v)
	require.NoError(t, err)
	assert.Len(t, raw, DefaultLength)
	assert.NotContains(t, v, "=")
}

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		v, err := Generate()
		require.NoError(t, err)
		_, dup := seen[v]
		require.False(t, dup, "duplicate token %q", v)
		seen[v] = struct{}{}
	}
}

func TestGenerateWithLength(t *testing.T) {
	v, err := GenerateWithLength(16)
	require.NoError(t, err)
	assert.Len(t, v, 22)
}
