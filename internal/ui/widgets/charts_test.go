package widgets

import (
	"math"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSpark8(t *testing.T) {
	assert.Equal(t, "", Spark8(nil, 5))
	assert.Equal(t, "   ▁█", Spark8([]float64{0, 1}, 5))
	assert.Equal(t, "▁█", Spark8([]float64{1, 1, 0, 1}, 2), "keeps the newest samples")
	assert.Equal(t, "█▁", Spark8([]float64{7, -3}, 2), "clamps out of range values")
}

func TestBar(t *testing.T) {
	assert.Equal(t, "     ", Bar(0, 5))
	assert.Equal(t, "█    ", Bar(0.01, 5))
	assert.Equal(t, "█████", Bar(2, 5))
	assert.Equal(t, "     ", Bar(math.NaN(), 5))
	assert.Equal(t, 5, utf8.RuneCountInString(Bar(math.Inf(1), 5)))
	assert.Equal(t, "", Bar(0.5, 0))
}
