// Package sampler renders the percussive voices the sequencer triggers:
// short synthesized drum hits with a decaying amplitude envelope and an
// optional pitch sweep. Triggers arrive from the control domain with a
// target render frame and start sample-accurately inside the block.
package sampler

import (
	"math"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

// maxVoices bounds polyphony; a trigger past the pool steals the oldest
// playing voice.
const maxVoices = 32

type (
	Sampler struct {
		sampleRate float64
		triggers   chan noteOn
		voices     [maxVoices]voice
	}

	noteOn struct {
		frame int64
		spec  pulsar.VoiceSpec
	}

	voice struct {
		active  bool
		waiting bool // frame not reached yet
		frame   int64
		spec    pulsar.VoiceSpec
		phase   float64
		age     float64 // seconds since start
		rng     uint32
	}
)

func NewSampler(sampleRate float64) *Sampler {
	return &Sampler{
		sampleRate: sampleRate,
		triggers:   make(chan noteOn, 256),
	}
}

// TriggerAt schedules a voice to start at the given render time. Control
// domain; non-blocking, a full queue drops the hit. Returns false when
// dropped.
func (s *Sampler) TriggerAt(at float64, spec pulsar.VoiceSpec) bool {
	select {
	case s.triggers <- noteOn{frame: int64(at * s.sampleRate), spec: spec.Clamp()}:
		return true
	default:
		return false
	}
}

// Render adds the active voices into buf, whose first frame is startFrame
// on the render clock. Render domain; allocation-free.
func (s *Sampler) Render(buf pulsar.AudioBuffer, startFrame int64) {
	s.drainTriggers(startFrame)
	endFrame := startFrame + int64(len(buf))
	for v := range s.voices {
		vc := &s.voices[v]
		if !vc.active {
			continue
		}
		if vc.waiting {
			if vc.frame >= endFrame {
				continue
			}
			vc.waiting = false
		}
		offset := int(vc.frame - startFrame)
		if offset < 0 {
			offset = 0
		}
		vc.render(buf[offset:], s.sampleRate)
	}
}

func (s *Sampler) drainTriggers(startFrame int64) {
	for {
		select {
		case n := <-s.triggers:
			s.allocate(n, startFrame)
		default:
			return
		}
	}
}

func (s *Sampler) allocate(n noteOn, startFrame int64) {
	slot := -1
	var oldest float64 = -1
	for i := range s.voices {
		if !s.voices[i].active {
			slot = i
			break
		}
		if s.voices[i].age > oldest {
			oldest = s.voices[i].age
			slot = i
		}
	}
	frame := n.frame
	if frame < startFrame {
		frame = startFrame // late trigger starts immediately
	}
	s.voices[slot] = voice{
		active:  true,
		waiting: true,
		frame:   frame,
		spec:    n.spec,
		rng:     uint32(frame)*2654435761 + 1,
	}
}

// Active reports how many voices are currently sounding or pending.
func (s *Sampler) Active() int {
	n := 0
	for i := range s.voices {
		if s.voices[i].active {
			n++
		}
	}
	return n
}

// Reset silences everything and drops pending triggers.
func (s *Sampler) Reset() {
	for {
		select {
		case <-s.triggers:
		default:
			goto drained
		}
	}
drained:
	for i := range s.voices {
		s.voices[i] = voice{}
	}
}

func (vc *voice) render(buf pulsar.AudioBuffer, sampleRate float64) {
	decay := vc.spec.Decay
	dt := 1 / sampleRate
	for i := range buf {
		env := math.Exp(-vc.age / decay)
		if env < 1e-4 {
			vc.active = false
			return
		}
		freq := vc.spec.Freq * math.Exp(-vc.spec.Sweep*vc.age*8)
		var sample float64
		switch vc.spec.Wave {
		case pulsar.WaveTriangle:
			sample = 2*math.Abs(2*(vc.phase-math.Floor(vc.phase+0.5))) - 1
		case pulsar.WaveSaw:
			sample = 2 * (vc.phase - math.Floor(vc.phase+0.5))
		case pulsar.WaveSquare:
			if vc.phase-math.Floor(vc.phase) < 0.5 {
				sample = 1
			} else {
				sample = -1
			}
		case pulsar.WaveNoise:
			vc.rng = vc.rng*1664525 + 1013904223
			sample = float64(vc.rng)/float64(math.MaxUint32)*2 - 1
		default: // sine
			sample = math.Sin(2 * math.Pi * vc.phase)
		}
		out := float32(sample * env * vc.spec.Gain)
		buf[i][0] += out
		buf[i][1] += out
		vc.phase += freq * dt
		vc.age += dt
	}
}
