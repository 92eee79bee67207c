// ABOUTME: Bounded ring buffer for agent output with absolute stream offsets.
// ABOUTME: Oldest data is dropped on overflow; reads are a best-effort tail.

package supervisor

import "sync"

// ringBuffer retains the most recent cap bytes of a stream while tracking
// absolute offsets, so a reader that falls behind learns how much it missed.
type ringBuffer struct {
	mu    sync.Mutex
	buf   []byte
	max   int
	start uint64 // absolute offset of buf[0]
}

func newRingBuffer(max int) *ringBuffer {
	return &ringBuffer{max: max}
}

// Write appends p, dropping the oldest bytes once capacity is exceeded.
// It never fails; it exists to satisfy io.Writer for stream pumps.
func (r *ringBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(p) >= r.max {
		// The write alone overflows the buffer; keep only its tail.
		dropped := len(p) - r.max
		r.start += uint64(len(r.buf) + dropped)
		r.buf = append(r.buf[:0], p[dropped:]...)
		return len(p), nil
	}

	r.buf = append(r.buf, p...)
	if overflow := len(r.buf) - r.max; overflow > 0 {
		r.buf = r.buf[overflow:]
		r.start += uint64(overflow)
	}
	return len(p), nil
}

// ReadSince returns a copy of the buffered bytes at or after the absolute
// offset since, plus the offset one past the returned data. If since falls
// before the retained window the read starts at the window's beginning.
func (r *ringBuffer) ReadSince(since uint64) ([]byte, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.start + uint64(len(r.buf))
	if since >= end {
		return nil, end
	}
	if since < r.start {
		since = r.start
	}
	out := make([]byte, end-since)
	copy(out, r.buf[since-r.start:])
	return out, end
}

// End returns the absolute offset one past the last byte written.
func (r *ringBuffer) End() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.start + uint64(len(r.buf))
}
