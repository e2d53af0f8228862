package fx

import (
	"math"

	"github.com/viterin/vek/vek32"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

// Meter tracks smoothed RMS and peak levels per channel over processed
// blocks. Levels decay exponentially so short transients stay visible.
type Meter struct {
	release float32
	rms     [2]float32
	peak    [2]float32
	tmp     []float32
	tmp2    []float32
}

func NewMeter(sampleRate float64) *Meter {
	return &Meter{
		release: float32(math.Exp(-1 / (0.3 * sampleRate / 64))),
		tmp:     make([]float32, 0, 4096),
		tmp2:    make([]float32, 0, 4096),
	}
}

// Analyze folds a block into the running levels. Render domain; the
// scratch slice is reused so steady-state calls do not allocate.
func (m *Meter) Analyze(buf pulsar.AudioBuffer) {
	if len(buf) == 0 {
		return
	}
	if cap(m.tmp) < len(buf) {
		m.tmp = make([]float32, len(buf))
		m.tmp2 = make([]float32, len(buf))
	}
	s := m.tmp[:len(buf)]
	for ch := 0; ch < 2; ch++ {
		for i := range buf {
			s[i] = buf[i][ch]
		}
		sq := vek32.Mul_Into(m.tmp2[:len(s)], s, s)
		rms := float32(math.Sqrt(float64(vek32.Mean(sq))))
		if rms > m.rms[ch] {
			m.rms[ch] = rms
		} else {
			m.rms[ch] = rms + (m.rms[ch]-rms)*m.release
		}
		vek32.Abs_Inplace(s)
		peak := vek32.Max(s)
		if peak > m.peak[ch] {
			m.peak[ch] = peak
		} else {
			m.peak[ch] *= m.release
		}
	}
}

// Levels returns the current smoothed (rms, peak) per channel.
func (m *Meter) Levels() (rms, peak [2]float32) {
	return m.rms, m.peak
}

// Reset zeroes the running levels.
func (m *Meter) Reset() {
	m.rms = [2]float32{}
	m.peak = [2]float32{}
}
