package fx

import (
	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

// captureRing is a fixed-capacity ring of stereo frames, continuously
// overwritten by the render callback. SnapshotInto copies the most recent
// frames out; snapshots are always copies, so the live ring and a frozen
// snapshot never alias. All methods run in the render domain.
type captureRing struct {
	buf    pulsar.AudioBuffer
	write  int
	filled int
}

func newCaptureRing(capacity int) *captureRing {
	if capacity < 1 {
		capacity = 1
	}
	return &captureRing{buf: make(pulsar.AudioBuffer, capacity)}
}

// Write overwrites the oldest frames in the ring with the block.
func (r *captureRing) Write(block pulsar.AudioBuffer) {
	for i := range block {
		r.buf[r.write] = block[i]
		r.write++
		if r.write >= len(r.buf) {
			r.write = 0
		}
	}
	r.filled += len(block)
	if r.filled > len(r.buf) {
		r.filled = len(r.buf)
	}
}

// Filled returns how many valid frames the ring currently holds.
func (r *captureRing) Filled() int { return r.filled }

// SnapshotInto copies the most recent n frames, oldest first, into dst and
// returns how many frames were written. reverse flips the copy so the
// newest frame comes first. n is clamped to both the filled region and the
// destination capacity.
func (r *captureRing) SnapshotInto(dst pulsar.AudioBuffer, n int, reverse bool) int {
	if n > r.filled {
		n = r.filled
	}
	if n > len(dst) {
		n = len(dst)
	}
	if n <= 0 {
		return 0
	}
	start := r.write - n
	for start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < n; i++ {
		src := start + i
		if src >= len(r.buf) {
			src -= len(r.buf)
		}
		if reverse {
			dst[n-1-i] = r.buf[src]
		} else {
			dst[i] = r.buf[src]
		}
	}
	return n
}

// Reset forgets everything captured so far.
func (r *captureRing) Reset() {
	r.write = 0
	r.filled = 0
}
