package dedup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/beat.report/internal/beat"
)

func TestSeen_Bucketing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		first  float64
		second float64
		want   bool // result of the second Seen call
	}{
		{"same 10ms bucket", 1.001, 1.004, false},
		{"crosses bucket boundary", 1.001, 1.011, true},
		{"exact repeat", 2.5, 2.5, false},
		{"rounds up into next bucket", 1.004, 1.006, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := New(0)
			require.True(t, d.Seen(tt.first, beat.Beat))
			assert.Equal(t, tt.want, d.Seen(tt.second, beat.Beat))
		})
	}
}

func TestSeen_TypeIsPartOfKey(t *testing.T) {
	t.Parallel()
	d := New(0)
	assert.True(t, d.Seen(3.0, beat.Beat))
	assert.True(t, d.Seen(3.0, beat.Downbeat))
	assert.False(t, d.Seen(3.001, beat.Downbeat))
}

func TestPrune_FIFOOrder(t *testing.T) {
	t.Parallel()
	d := New(DefaultCapacity)

	for i := 0; i <= DefaultCapacity; i++ {
		require.True(t, d.Seen(float64(i)*0.1, beat.Beat))
	}
	// 1001 keys exceeded the capacity, so the oldest 500 are gone.
	assert.Equal(t, DefaultCapacity+1-DefaultCapacity/2, d.Len())
	assert.Equal(t, uint64(DefaultCapacity/2), d.Pruned())

	keys := d.Keys()
	assert.Equal(t, KeyFor(50.0, beat.Beat), keys[0])
	assert.Equal(t, KeyFor(100.0, beat.Beat), keys[len(keys)-1])

	// Evicted events are accepted again; retained ones are still duplicates.
	assert.True(t, d.Seen(0.0, beat.Beat))
	assert.True(t, d.Seen(49.9, beat.Beat))
	assert.False(t, d.Seen(50.0, beat.Beat))
}

func TestPrune_SmallCapacity(t *testing.T) {
	t.Parallel()
	d := New(4)
	for _, st := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		d.Seen(st, beat.Beat)
	}
	want := []Key{KeyFor(0.3, beat.Beat), KeyFor(0.4, beat.Beat), KeyFor(0.5, beat.Beat)}
	if diff := cmp.Diff(want, d.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestNoTimeExpiry(t *testing.T) {
	t.Parallel()
	d := New(0)
	d.Seen(1.0, beat.Beat)
	for i := 0; i < 100; i++ {
		d.Seen(1000+float64(i), beat.Beat)
	}
	assert.False(t, d.Seen(1.0, beat.Beat))
}
