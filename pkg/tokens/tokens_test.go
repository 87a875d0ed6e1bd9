package tokens

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCounter_UnknownModelFallsBack(t *testing.T) {
	c, err := NewCounter("definitely-not-a-model")
	require.NoError(t, err)
	assert.Greater(t, c.Count("hello world"), 0)
}

func TestCounter_CountNonDecreasing(t *testing.T) {
	c, err := NewCounter("gpt-4")
	require.NoError(t, err)

	short := c.Count("hello")
	long := c.Count("hello there, this is a longer sentence with more tokens")
	assert.Greater(t, long, short)
}

func TestCounter_Cached(t *testing.T) {
	a, err := NewCounter("gpt-4")
	require.NoError(t, err)
	b, err := NewCounter("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, a.Count("same text either way"), b.Count("same text either way"))
}

func TestEstimate_LowerBound(t *testing.T) {
	cases := []string{
		"What is AI?",
		"one",
		"a b c d e f g h i j",
		strings.Repeat("word ", 100),
	}
	for _, text := range cases {
		words := len(strings.Fields(text))
		want := int(math.Ceil(float64(words) * 1.3))
		assert.GreaterOrEqual(t, Estimate(text), want, "text: %q", text)
	}
}

func TestEstimate_Empty(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 0, Estimate("   "))
}
