package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LoraFall/internal/model"
	"LoraFall/internal/timeutil"
)

func ev(epoch uint32) model.FallEvent {
	return model.FallEvent{EpochMs: epoch, PeakCentiG: 300, IdleMs: 700}
}

func TestNew_ClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, New[int](0, nil).Cap())
	assert.Equal(t, 1, New[int](-3, nil).Cap())
	assert.Equal(t, 4, New[int](4, nil).Cap())
	assert.Equal(t, MaxCapacity, New[int](100, nil).Cap())
}

func TestPush_EvictsOldest(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	q := New[model.FallEvent](2, clock)

	a, b, c := ev(1), ev(2), ev(3)
	assert.True(t, q.Push(a))
	assert.True(t, q.Push(b))
	assert.True(t, q.Push(c))
	assert.Equal(t, uint64(1), q.Dropped())

	got, ok := q.Pop(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, b, got)
	got, ok = q.Pop(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, c, got)

	done := make(chan bool)
	go func() {
		_, ok := q.Pop(10 * time.Millisecond)
		done <- ok
	}()
	clock.BlockUntil(1)
	clock.Advance(10 * time.Millisecond)
	assert.False(t, <-done)
}

func TestPush_CapacityOneKeepsNewest(t *testing.T) {
	q := New[int](1, nil)
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}
	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Equal(t, uint64(4), q.Dropped())
}

func TestPop_FIFOOrderAcrossWrap(t *testing.T) {
	q := New[int](3, nil)
	var got []int
	for i := 0; i < 10; i++ {
		q.Push(i)
		if i%2 == 1 {
			v, ok := q.TryPop()
			require.True(t, ok)
			got = append(got, v)
		}
	}
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	// 2, 4 and 6 are evicted by the pushes that overflow the ring
	assert.Equal(t, []int{0, 1, 3, 5, 7, 8, 9}, got)
}

func TestPop_ZeroTimeoutPolls(t *testing.T) {
	q := New[int](2, timeutil.NewMockClock(time.Unix(0, 0)))
	_, ok := q.Pop(0)
	assert.False(t, ok)
	q.Push(7)
	v, ok := q.Pop(0)
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestPop_WakesOnPush(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	q := New[int](4, clock)

	got := make(chan int)
	go func() {
		v, ok := q.Pop(time.Second)
		if !ok {
			v = -1
		}
		got <- v
	}()
	clock.BlockUntil(1)
	q.Push(42)

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer not woken by push")
	}
}

func TestPop_RealClockTimeout(t *testing.T) {
	q := NewAlertQueue(4)
	start := time.Now()
	_, ok := q.Pop(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
