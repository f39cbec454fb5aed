package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum_StableAndKeyed(t *testing.T) {
	a := New("k1")
	b := New("k2")

	assert.Equal(t, a.Sum("user@example.com"), a.Sum("user@example.com"))
	assert.NotEqual(t, a.Sum("user@example.com"), b.Sum("user@example.com"))
	assert.Len(t, a.Sum("user@example.com"), 32)
	assert.NotContains(t, a.Sum("user@example.com"), "example")
}

func TestSum_Empty(t *testing.T) {
	assert.Equal(t, "", New("k").Sum(""))
}

func TestNew_TruncatesLongKey(t *testing.T) {
	h := New(strings.Repeat("x", 100))
	assert.NotEmpty(t, h.Sum("v"))
}

func TestSum_ZeroValueUnkeyed(t *testing.T) {
	var h Hasher
	assert.Len(t, h.Sum("v"), 32)
}
