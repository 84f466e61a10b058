package timeutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClockMapper_LiteralExample(t *testing.T) {
	t.Parallel()
	m := NewClockMapper(0.1)

	_, primed := m.Offset()
	assert.False(t, primed)

	got := m.Map(2.0, 102.0)
	assert.InDelta(t, 102.0, got, 1e-12)
	off, primed := m.Offset()
	assert.True(t, primed)
	assert.InDelta(t, 100.0, off, 1e-12)

	got = m.Map(2.5, 103.0)
	off, _ = m.Offset()
	assert.InDelta(t, 100.05, off, 1e-12)
	assert.InDelta(t, 102.55, got, 1e-12)
}

func TestClockMapper_DefaultAlpha(t *testing.T) {
	t.Parallel()
	for _, alpha := range []float64{0, -1, 1.5, math.NaN()} {
		assert.Equal(t, DefaultOffsetAlpha, NewClockMapper(alpha).Alpha(), "alpha=%v", alpha)
	}
	assert.Equal(t, 1.0, NewClockMapper(1).Alpha())
}

// With alpha=1 the mapper tracks the latest estimate exactly.
func TestClockMapper_AlphaOne(t *testing.T) {
	t.Parallel()
	m := NewClockMapper(1)
	m.Map(0, 10)
	assert.InDelta(t, 13.0, m.Map(1, 13), 1e-12)
}

func TestClockMapper_SmoothsJitter(t *testing.T) {
	t.Parallel()
	m := NewClockMapper(0.1)
	const trueOffset = 1000.0

	// Alternate +/-20 ms of scheduling jitter around the true offset.
	var last float64
	for i := 0; i < 200; i++ {
		st := float64(i) * 0.5
		jitter := 0.02
		if i%2 == 1 {
			jitter = -0.02
		}
		last = m.Map(st, st+trueOffset+jitter)
	}
	off, _ := m.Offset()
	assert.InDelta(t, trueOffset, off, 0.02)
	assert.InDelta(t, 99.5+trueOffset, last, 0.02)
}
