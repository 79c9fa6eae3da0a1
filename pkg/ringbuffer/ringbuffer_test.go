package ringbuffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(d time.Duration) *time.Duration { return &d }

func TestGetAndClearEmptyBeforeHeader(t *testing.T) {
	rb := New(10 * time.Second)
	assert.Nil(t, rb.GetAndClear())
}

func TestHeaderStickiness(t *testing.T) {
	rb := New(10 * time.Second)

	rb.Push([]byte("h1"), true, nil)
	rb.Push([]byte("h2"), true, nil)
	rb.Push([]byte("d1"), false, ptr(0))

	// Header is latched now; a later chunk flagged as header is ordinary data.
	rb.Push([]byte("h3-late"), true, ptr(time.Second))

	out := rb.GetAndClear()
	require.Len(t, out, 4)
	assert.Equal(t, "h1", string(out[0]))
	assert.Equal(t, "h2", string(out[1]))
	assert.Equal(t, "d1", string(out[2]))
	assert.Equal(t, "h3-late", string(out[3]))
}

func TestHeaderDetectedByEBMLMagic(t *testing.T) {
	rb := New(10 * time.Second)

	magic := append([]byte{0x1A, 0x45, 0xDF, 0xA3}, []byte("rest")...)
	rb.Push(magic, false, nil)
	rb.Push([]byte("d1"), false, ptr(0))

	out := rb.GetAndClear()
	require.Len(t, out, 2)
	assert.Equal(t, magic, out[0])
	assert.Equal(t, "d1", string(out[1]))
}

func TestDropsUntimestampedChunksAfterHeader(t *testing.T) {
	rb := New(10 * time.Second)

	rb.Push([]byte("h1"), true, nil)
	rb.Push([]byte("untimestamped"), false, nil)
	rb.Push([]byte("d1"), false, ptr(0))

	out := rb.GetAndClear()
	require.Len(t, out, 2)
	assert.Equal(t, "h1", string(out[0]))
	assert.Equal(t, "d1", string(out[1]))
}

func TestDurationBoundEvictsOldest(t *testing.T) {
	rb := New(5 * time.Second)

	rb.Push([]byte("h"), true, nil)
	for i := 0; i < 10; i++ {
		rb.Push([]byte{byte(i)}, false, ptr(time.Duration(i)*time.Second))
	}

	count, dur := rb.Occupied()
	assert.LessOrEqual(t, dur, 5*time.Second)
	assert.Greater(t, count, 0)

	out := rb.GetAndClear()
	// header + remaining in-window chunks
	require.GreaterOrEqual(t, len(out), 2)
	last := out[len(out)-1]
	assert.Equal(t, byte(9), last[0])
}

func TestTimestampRegressionResync(t *testing.T) {
	rb := New(10 * time.Second)

	rb.Push([]byte("h"), true, nil)
	for i := 0; i < 5; i++ {
		rb.Push([]byte{byte(i)}, false, ptr(time.Duration(i)*time.Second))
	}
	count, _ := rb.Occupied()
	require.Equal(t, 5, count)

	// Regression: the new pts lands below the buffered front (not merely
	// below the previous back), which is what pushLocked actually checks.
	rb.Push([]byte{99}, false, ptr(-time.Second))

	count, _ = rb.Occupied()
	assert.Equal(t, 0, count, "buffer should have been cleared on regression")

	// Header must survive the resync.
	out := rb.GetAndClear()
	require.Len(t, out, 1)
	assert.Equal(t, "h", string(out[0]))
}

func TestRoundTrip(t *testing.T) {
	rb := New(time.Minute)

	rb.Push([]byte("h"), true, nil)
	want := [][]byte{[]byte("h")}
	for i := 0; i < 20; i++ {
		data := []byte{byte(i)}
		rb.Push(data, false, ptr(time.Duration(i)*time.Millisecond))
		want = append(want, data)
	}

	out := rb.GetAndClear()
	require.Equal(t, want, out)
}

func TestGetAndClearEmptiesDataNotHeader(t *testing.T) {
	rb := New(time.Minute)

	rb.Push([]byte("h"), true, nil)
	rb.Push([]byte("d1"), false, ptr(0))

	first := rb.GetAndClear()
	require.Len(t, first, 2)

	second := rb.GetAndClear()
	require.Len(t, second, 1, "only the header should remain after a drain")
	assert.Equal(t, "h", string(second[0]))
}

func TestTryLockPushLocked(t *testing.T) {
	rb := New(time.Minute)

	require.True(t, rb.TryLock())
	rb.PushLocked([]byte("h"), true, nil)
	rb.PushLocked([]byte("d1"), false, ptr(0))
	rb.Unlock()

	out := rb.GetAndClear()
	require.Len(t, out, 2)
}
