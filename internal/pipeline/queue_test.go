package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/beat.report/internal/beat"
)

func entry(t float64) beat.QueueEntry {
	return beat.QueueEntry{RawObservation: beat.RawObservation{StreamTime: t, Type: beat.Beat}}
}

func streamTimes(entries []beat.QueueEntry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.StreamTime
	}
	return out
}

func TestEventQueue_DropOldest(t *testing.T) {
	t.Parallel()
	q := NewEventQueue(3)
	// A, B, C, D
	assert.Equal(t, Pushed, q.Push(entry(1)))
	assert.Equal(t, Pushed, q.Push(entry(2)))
	assert.Equal(t, Pushed, q.Push(entry(3)))
	assert.Equal(t, EvictedOldest, q.Push(entry(4)))

	if diff := cmp.Diff([]float64{2, 3, 4}, streamTimes(q.Snapshot())); diff != "" {
		t.Errorf("queue contents (-want +got):\n%s", diff)
	}
	c := q.Counters()
	assert.Equal(t, QueueCounters{Pushed: 4, Evicted: 1, Len: 3, Cap: 3}, c)
}

func TestEventQueue_OrderPreservedAcrossWrap(t *testing.T) {
	t.Parallel()
	q := NewEventQueue(4)
	for i := 1; i <= 10; i++ {
		q.Push(entry(float64(i)))
		if i%3 == 0 {
			_, ok := q.Pop(context.Background(), 0)
			require.True(t, ok)
		}
	}
	assert.Equal(t, []float64{7, 8, 9, 10}, streamTimes(q.Snapshot()))

	var got []float64
	for {
		e, ok := q.Pop(context.Background(), 0)
		if !ok {
			break
		}
		got = append(got, e.StreamTime)
	}
	assert.Equal(t, []float64{7, 8, 9, 10}, got)
}

func TestEventQueue_PopTimeout(t *testing.T) {
	t.Parallel()
	q := NewEventQueue(0)
	assert.Equal(t, DefaultQueueCapacity, q.Counters().Cap)

	start := time.Now()
	_, ok := q.Pop(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestEventQueue_PopWakesOnPush(t *testing.T) {
	t.Parallel()
	q := NewEventQueue(2)
	got := make(chan beat.QueueEntry, 1)
	go func() {
		e, ok := q.Pop(context.Background(), 5*time.Second)
		if ok {
			got <- e
		}
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push(entry(42))
	select {
	case e := <-got:
		assert.Equal(t, 42.0, e.StreamTime)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}

func TestEventQueue_PopHonoursContext(t *testing.T) {
	t.Parallel()
	q := NewEventQueue(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.Pop(ctx, time.Hour)
	assert.False(t, ok)
}

func TestEventQueue_CloseDrainsThenReportsEmpty(t *testing.T) {
	t.Parallel()
	q := NewEventQueue(4)
	q.Push(entry(1))
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Drained())
	assert.Equal(t, Rejected, q.Push(entry(2)))

	e, ok := q.Pop(context.Background(), time.Hour)
	require.True(t, ok)
	assert.Equal(t, 1.0, e.StreamTime)

	start := time.Now()
	_, ok = q.Pop(context.Background(), time.Hour)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, q.Drained())
}

func TestEventQueue_CloseWakesBlockedPoppers(t *testing.T) {
	t.Parallel()
	q := NewEventQueue(1)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop(context.Background(), time.Hour)
			assert.False(t, ok)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not wake poppers")
	}
}

func TestEventQueue_ConcurrentPushNeverBlocks(t *testing.T) {
	t.Parallel()
	q := NewEventQueue(8)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				q.Push(entry(float64(i)))
			}
		}()
	}
	wg.Wait()
	c := q.Counters()
	assert.Equal(t, uint64(4000), c.Pushed)
	assert.Equal(t, uint64(4000-8), c.Evicted)
	assert.Equal(t, 8, c.Len)
}

func TestPushResult_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "pushed", Pushed.String())
	assert.Equal(t, "evicted_oldest", EvictedOldest.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "unknown", PushResult(9).String())
}

func TestLatestSlot_Overwrite(t *testing.T) {
	t.Parallel()
	s := NewLatestSlot[int]()
	_, ok := s.Get(context.Background(), 0)
	assert.False(t, ok)

	s.Put(1)
	s.Put(2)
	s.Put(3)
	v, ok := s.Get(context.Background(), 0)
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, uint64(2), s.Overwrites())
	assert.Equal(t, uint64(3), s.Puts())

	_, ok = s.Get(context.Background(), 0)
	assert.False(t, ok, "slot should be empty after Get")

	s.Put(4)
	assert.Equal(t, uint64(2), s.Overwrites(), "put into an empty slot is not an overwrite")
}

func TestLatestSlot_GetWaits(t *testing.T) {
	t.Parallel()
	s := NewLatestSlot[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Put("frame")
	}()
	v, ok := s.Get(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "frame", v)

	start := time.Now()
	_, ok = s.Get(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = s.Get(ctx, time.Hour)
	assert.False(t, ok)
}
