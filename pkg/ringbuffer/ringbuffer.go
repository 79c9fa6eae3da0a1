// Package ringbuffer implements the timestamp-bounded rolling chunk buffer
// that sits between the encoder pipeline's sink callback and the save
// orchestrator.
package ringbuffer

import (
	"sync"
	"time"
)

// ebmlMagic is the Matroska/WebM EBML header signature. While no header chunk
// has been collected yet, a chunk containing this sequence is treated as a
// header chunk even if the muxer didn't flag it explicitly.
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

type timedChunk struct {
	data []byte
	pts  time.Duration
}

// RingBuffer buffers encoded chunks so that, at any moment, header chunks
// plus the buffered data chunks form a valid remux input covering
// approximately the last CapacityDuration of wall-clock time.
type RingBuffer struct {
	mu sync.Mutex

	header         [][]byte
	headerComplete bool

	buffer []timedChunk

	capacityDuration time.Duration
}

// New constructs a RingBuffer bounded to capacityDuration.
func New(capacityDuration time.Duration) *RingBuffer {
	return &RingBuffer{capacityDuration: capacityDuration}
}

func looksLikeEBMLHeader(data []byte) bool {
	if len(data) < len(ebmlMagic) {
		return false
	}
	for i := 0; i+len(ebmlMagic) <= len(data); i++ {
		match := true
		for j, b := range ebmlMagic {
			if data[i+j] != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// pushLocked assumes r.mu is already held.
func (r *RingBuffer) pushLocked(data []byte, isHeader bool, pts *time.Duration) {
	if !r.headerComplete {
		if isHeader || (len(r.header) == 0 && looksLikeEBMLHeader(data)) {
			r.header = append(r.header, data)
			return
		}
		r.headerComplete = true
	}

	if pts == nil {
		return
	}

	r.buffer = append(r.buffer, timedChunk{data: data, pts: *pts})

	for len(r.buffer) > 0 {
		front := r.buffer[0].pts
		back := r.buffer[len(r.buffer)-1].pts
		if back < front {
			// Timestamp regression: resync by dropping the data portion.
			// The header is never touched.
			r.buffer = nil
			break
		}
		if back-front > r.capacityDuration {
			r.buffer = r.buffer[1:]
			continue
		}
		break
	}
}

// Push appends a chunk to the buffer, or to the sticky header prefix if it is
// still being assembled. If pts is nil the chunk is dropped once the header
// is complete (the pipeline has not yet assigned it a timestamp). Push
// blocks for the lock; the encoder's real-time callback should use TryLock
// and PushLocked instead so it never blocks on a concurrent drain.
func (r *RingBuffer) Push(data []byte, isHeader bool, pts *time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushLocked(data, isHeader, pts)
}

// TryLock attempts to acquire the buffer's lock without blocking, for use by
// the encoder's real-time sink callback. Callers must call Unlock exactly
// once when TryLock returns true, and must use PushLocked (not Push) while
// holding the lock this way.
func (r *RingBuffer) TryLock() bool {
	return r.mu.TryLock()
}

// Unlock releases a lock acquired via TryLock.
func (r *RingBuffer) Unlock() {
	r.mu.Unlock()
}

// PushLocked is Push's body, for callers that already hold the lock via a
// successful TryLock.
func (r *RingBuffer) PushLocked(data []byte, isHeader bool, pts *time.Duration) {
	r.pushLocked(data, isHeader, pts)
}

// GetAndClear returns the header chunks followed by the currently buffered
// data chunks, then empties the data portion. Returns nil if the header has
// not been assembled yet (nothing is ready to save).
func (r *RingBuffer) GetAndClear() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.header) == 0 {
		return nil
	}

	out := make([][]byte, 0, len(r.header)+len(r.buffer))
	out = append(out, r.header...)
	for _, tc := range r.buffer {
		out = append(out, tc.data)
	}
	r.buffer = nil
	return out
}

// Occupied reports the current number of buffered data chunks and the
// wall-clock duration they span, for occupancy logging. It takes the same
// lock as Push and never mutates state.
func (r *RingBuffer) Occupied() (count int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buffer) == 0 {
		return 0, 0
	}
	front := r.buffer[0].pts
	back := r.buffer[len(r.buffer)-1].pts
	if back < front {
		return len(r.buffer), 0
	}
	return len(r.buffer), back - front
}
