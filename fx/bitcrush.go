package fx

import (
	"math"
	"sync/atomic"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

type (
	// Bitcrush is the lo-fi degradation block processor: pre-drive
	// waveshaping, time-domain jitter from a short delay ring,
	// sample-and-hold decimation, bit-depth quantization, then an optional
	// one-pole lowpass and looped colored noise.
	//
	// Momentary and sustained triggering share one state machine; a
	// sustained hold is simply a trigger with no deadline, released by
	// Stop. The wet path is crossfaded in and out over a short ramp so
	// engaging the crusher never clicks.
	Bitcrush struct {
		sampleRate float64
		params     atomic.Pointer[pulsar.BitcrushParams]
		trigger    atomic.Pointer[bitcrushTrigger]
		stopReq    atomic.Bool

		// render-domain state
		state     crushState
		sustain   bool
		remaining int
		env       float64
		envStep   float64

		holdPhase float64
		held      [2]float32

		delayRing  pulsar.AudioBuffer
		delayWrite int
		walk       float64
		walkTarget float64
		walkAlpha  float64
		lfoPhase   float64
		wowPhase   float64

		noise    map[pulsar.NoiseColor][]float32
		noisePos int
		lpState  [2]float64
		rngState uint32
	}

	bitcrushTrigger struct {
		frames  int
		sustain bool
	}

	crushState int
)

const (
	crushIdle crushState = iota
	crushRampIn
	crushActive
	crushRampOut
)

// crushRampSeconds is the wet crossfade on trigger and release.
const crushRampSeconds = 0.01

func NewBitcrush(sampleRate float64, seed int64) *Bitcrush {
	b := &Bitcrush{
		sampleRate: sampleRate,
		envStep:    1 / (crushRampSeconds * sampleRate),
		delayRing:  make(pulsar.AudioBuffer, int(0.05*sampleRate)+2),
		walkAlpha:  1 - math.Exp(-1/(0.02*sampleRate)),
		noise: map[pulsar.NoiseColor][]float32{
			pulsar.NoiseWhite: noiseTable(pulsar.NoiseWhite, sampleRate, seed),
			pulsar.NoisePink:  noiseTable(pulsar.NoisePink, sampleRate, seed+1),
			pulsar.NoiseBrown: noiseTable(pulsar.NoiseBrown, sampleRate, seed+2),
		},
		rngState: uint32(seed)*2654435761 + 1,
	}
	p := pulsar.DefaultBitcrushParams()
	b.params.Store(&p)
	return b
}

// SetParams publishes a new parameter set. Control domain.
func (b *Bitcrush) SetParams(p pulsar.BitcrushParams) {
	p = p.Clamp()
	b.params.Store(&p)
}

func (b *Bitcrush) Params() pulsar.BitcrushParams { return *b.params.Load() }

// Trigger engages the crusher for the given duration. Sustained triggers
// ignore the duration and hold until Stop. Control domain; the request is
// picked up at the next block boundary.
func (b *Bitcrush) Trigger(duration float64, sustain bool) {
	frames := int(duration * b.sampleRate)
	if frames < 1 {
		frames = 1
	}
	b.trigger.Store(&bitcrushTrigger{frames: frames, sustain: sustain})
}

// Stop releases a sustained (or still-running momentary) crush. Idempotent.
func (b *Bitcrush) Stop() { b.stopReq.Store(true) }

// Active reports whether the crusher is audible in the current block.
func (b *Bitcrush) Active() bool { return b.state != crushIdle }

// Quantize rounds a sample to the given bit depth: round(v*2^bits)/2^bits.
// Idempotent for any fixed bit depth.
func Quantize(v float32, bits int) float32 {
	if bits < 1 {
		bits = 1
	}
	levels := float32(math.Exp2(float64(bits)))
	return float32(math.Round(float64(v*levels))) / levels
}

// RateReduction maps the normalized sample-rate parameter to the
// sample-and-hold factor, floored to 1 so the decimator denominator can
// never be zero.
func RateReduction(sampleRateParam float64) float64 {
	rr := 1 + 32*(1-pulsar.ClampF(sampleRateParam, 0, 1))
	if rr < 1 {
		rr = 1
	}
	return rr
}

// Process runs the crusher over the block in place. Render domain.
func (b *Bitcrush) Process(buf pulsar.AudioBuffer) {
	if req := b.trigger.Swap(nil); req != nil {
		b.resetTransients()
		b.state = crushRampIn
		b.sustain = req.sustain
		b.remaining = req.frames
	}
	if b.stopReq.Swap(false) && b.state != crushIdle {
		b.state = crushRampOut
	}
	if b.state == crushIdle {
		return
	}

	p := b.params.Load()
	bits := 1 + int(math.Round(15*p.Bits))
	rr := RateReduction(p.SampleRate)
	lpCoeff := lowpassCoeff(p.PostFilter, b.sampleRate)
	noise := b.noise[p.NoiseColor]
	if noise == nil {
		noise = b.noise[pulsar.NoiseWhite]
	}

	for i := range buf {
		switch b.state {
		case crushRampIn:
			b.env += b.envStep
			if b.env >= 1 {
				b.env = 1
				b.state = crushActive
			}
		case crushActive:
			if !b.sustain {
				b.remaining--
				if b.remaining <= 0 {
					b.state = crushRampOut
				}
			}
		case crushRampOut:
			b.env -= b.envStep
			if b.env <= 0 {
				b.env = 0
				b.state = crushIdle
				b.resetTransients()
				return
			}
		}

		in := buf[i]
		wet := in

		// (a) pre-drive waveshaping
		if p.Drive > 0 {
			wet[0] = waveshape(wet[0], p.Curve, p.Drive)
			wet[1] = waveshape(wet[1], p.Curve, p.Drive)
		}

		// (b) time-domain jitter from the delay ring
		b.delayRing[b.delayWrite] = wet
		b.delayWrite++
		if b.delayWrite >= len(b.delayRing) {
			b.delayWrite = 0
		}
		if p.Jitter > 0 {
			offset := int(b.jitterMod(p.JitterMode) * p.Jitter * float64(len(b.delayRing)-2))
			read := b.delayWrite - 1 - offset
			for read < 0 {
				read += len(b.delayRing)
			}
			wet = b.delayRing[read]
		}

		// (c) sample-and-hold decimation
		b.holdPhase++
		if b.holdPhase >= rr {
			b.holdPhase -= rr
			// (d) bit-depth quantization of the re-sampled value
			b.held[0] = Quantize(wet[0], bits)
			b.held[1] = Quantize(wet[1], bits)
		}
		wet = b.held

		// (e) post lowpass and injected colored noise
		if lpCoeff < 1 {
			b.lpState[0] += lpCoeff * (float64(wet[0]) - b.lpState[0])
			b.lpState[1] += lpCoeff * (float64(wet[1]) - b.lpState[1])
			wet[0] = float32(b.lpState[0])
			wet[1] = float32(b.lpState[1])
		}
		if p.Noise > 0 {
			n := noise[b.noisePos] * float32(p.Noise) * 0.25
			b.noisePos++
			if b.noisePos >= len(noise) {
				b.noisePos = 0
			}
			wet[0] += n
			wet[1] += n
		}

		mix := float32(b.env * p.Mix)
		buf[i][0] = in[0] + (wet[0]-in[0])*mix
		buf[i][1] = in[1] + (wet[1]-in[1])*mix
	}
}

func (b *Bitcrush) resetTransients() {
	b.holdPhase = 0
	b.held = [2]float32{}
	b.walk = 0
	b.walkTarget = 0
	b.lfoPhase = 0
	b.wowPhase = 0
	b.lpState = [2]float64{}
	b.env = 0
	for i := range b.delayRing {
		b.delayRing[i] = [2]float32{}
	}
	b.delayWrite = 0
}

// jitterMod advances the active modulator by one sample and returns a value
// in [0, 1).
func (b *Bitcrush) jitterMod(mode pulsar.JitterMode) float64 {
	switch mode {
	case pulsar.JitterSine:
		b.lfoPhase += 3.0 / b.sampleRate
		if b.lfoPhase >= 1 {
			b.lfoPhase -= 1
		}
		return 0.5 + 0.5*math.Sin(2*math.Pi*b.lfoPhase)
	case pulsar.JitterTape:
		// slow wow plus faster flutter
		b.wowPhase += 0.5 / b.sampleRate
		if b.wowPhase >= 1 {
			b.wowPhase -= 1
		}
		b.lfoPhase += 6.0 / b.sampleRate
		if b.lfoPhase >= 1 {
			b.lfoPhase -= 1
		}
		v := 0.7*math.Sin(2*math.Pi*b.wowPhase) + 0.3*math.Sin(2*math.Pi*b.lfoPhase)
		return 0.5 + 0.5*v
	default: // smoothed random walk
		b.walkAdvance()
		return b.walk
	}
}

func (b *Bitcrush) walkAdvance() {
	// retarget roughly every 20 ms worth of smoothing distance
	if math.Abs(b.walk-b.walkTarget) < 1e-3 {
		b.walkTarget = b.renderRand()
	}
	b.walk += (b.walkTarget - b.walk) * b.walkAlpha
}

// renderRand is a tiny allocation-free LCG for render-domain randomness.
func (b *Bitcrush) renderRand() float64 {
	b.rngState = b.rngState*1664525 + 1013904223
	return float64(b.rngState) / float64(math.MaxUint32)
}

// lowpassCoeff maps the normalized cutoff to a one-pole coefficient;
// cutoff = 1 disables the filter entirely.
func lowpassCoeff(cutoff, sampleRate float64) float64 {
	if cutoff >= 1 {
		return 1
	}
	hz := 200 * math.Pow(100, pulsar.ClampF(cutoff, 0, 1)) // 200 Hz .. 20 kHz
	return 1 - math.Exp(-2*math.Pi*hz/sampleRate)
}
