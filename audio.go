package pulsar

type (
	// AudioBuffer is a buffer of stereo audio samples of variable length,
	// each sample represented by [2]float32. Slices of the buffer refer to
	// the same data as the original buffer.
	AudioBuffer [][2]float32

	// AudioProcessor fills a stereo buffer in the render domain. The call
	// must complete in bounded time: no allocations, no blocking I/O, no
	// panics escaping.
	AudioProcessor interface {
		Process(buffer AudioBuffer)
	}
)

// Zero fills the buffer with silence.
func (b AudioBuffer) Zero() {
	for i := range b {
		b[i] = [2]float32{}
	}
}

// Clone returns a copy of the buffer backed by fresh memory. Used when
// handing a snapshot to the render domain; the clone never aliases b.
func (b AudioBuffer) Clone() AudioBuffer {
	ret := make(AudioBuffer, len(b))
	copy(ret, b)
	return ret
}
