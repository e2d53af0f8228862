package pulsar

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

type (
	// Performance is the YAML-serializable model of one live set: tempo
	// state, per-track patterns and voices, and the initial glitch effect
	// parameters for each track. It configures the engine; it is not read
	// by the render domain directly.
	Performance struct {
		BPM         float64     `yaml:"bpm"`
		Swing       float64     `yaml:"swing"`
		Humanize    float64     `yaml:"humanize"`
		StepsPerBar int         `yaml:"stepsperbar"`
		Tracks      []TrackSpec `yaml:"tracks"`
	}

	TrackSpec struct {
		Name   string    `yaml:"name"`
		Length int       `yaml:"length"` // steps in this track's cycle, 1..32
		Steps  []int     `yaml:"steps,flow"`
		Voice  VoiceSpec `yaml:"voice"`
		Bypass bool      `yaml:"bypass,omitempty"`

		Stutter  *StutterParams  `yaml:"stutter,omitempty"`
		Bitcrush *BitcrushParams `yaml:"bitcrush,omitempty"`
		TapeStop *TapeStopParams `yaml:"tapestop,omitempty"`
		Freeze   *FreezeParams   `yaml:"freeze,omitempty"`
		Reverse  *ReverseParams  `yaml:"reverse,omitempty"`
		Chaos    *ChaosParams    `yaml:"chaos,omitempty"`
	}

	// VoiceSpec describes the drum voice a track triggers on active steps.
	VoiceSpec struct {
		Wave  string  `yaml:"wave"` // sine, triangle, saw, square, noise
		Freq  float64 `yaml:"freq"`
		Decay float64 `yaml:"decay"` // seconds
		Gain  float64 `yaml:"gain"`
		Sweep float64 `yaml:"sweep,omitempty"` // octaves the pitch falls over the decay
	}
)

const (
	MinTrackLength = 1
	MaxTrackLength = 32
)

// Wave names accepted in VoiceSpec.Wave.
const (
	WaveSine     = "sine"
	WaveTriangle = "triangle"
	WaveSaw      = "saw"
	WaveSquare   = "square"
	WaveNoise    = "noise"
)

// Clamp forces the voice into usable ranges. Unknown waves fall back to
// sine.
func (v VoiceSpec) Clamp() VoiceSpec {
	switch v.Wave {
	case WaveSine, WaveTriangle, WaveSaw, WaveSquare, WaveNoise:
	default:
		v.Wave = WaveSine
	}
	v.Freq = clampF(v.Freq, 20, 10000)
	if v.Decay <= 0 {
		v.Decay = 0.2
	}
	v.Decay = clampF(v.Decay, 0.01, 4)
	v.Gain = clampF(v.Gain, 0, 1)
	v.Sweep = clampF(v.Sweep, 0, 4)
	return v
}

// ParsePerformance unmarshals and normalizes a performance file.
func ParsePerformance(data []byte) (Performance, error) {
	var perf Performance
	if err := yaml.Unmarshal(data, &perf); err != nil {
		return Performance{}, fmt.Errorf("could not parse performance: %w", err)
	}
	perf.Normalize()
	if err := perf.Validate(); err != nil {
		return Performance{}, err
	}
	return perf, nil
}

// Normalize clamps all tempo state and track fields into their legal
// ranges and fills zero values with usable defaults.
func (p *Performance) Normalize() {
	if p.BPM == 0 {
		p.BPM = 120
	}
	p.BPM = clampF(p.BPM, MinBPM, MaxBPM)
	p.Swing = clamp01(p.Swing)
	p.Humanize = clamp01(p.Humanize)
	if p.StepsPerBar == 0 {
		p.StepsPerBar = 16
	}
	p.StepsPerBar = clampI(p.StepsPerBar, 1, MaxTrackLength)
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if t.Length == 0 {
			t.Length = len(t.Steps)
		}
		t.Length = clampI(t.Length, MinTrackLength, MaxTrackLength)
		if t.Voice.Freq <= 0 {
			t.Voice.Freq = 110
		}
		if t.Voice.Decay <= 0 {
			t.Voice.Decay = 0.2
		}
		if t.Voice.Gain == 0 {
			t.Voice.Gain = 0.8
		}
		if t.Stutter != nil {
			*t.Stutter = t.Stutter.Clamp()
		}
		if t.Bitcrush != nil {
			*t.Bitcrush = t.Bitcrush.Clamp()
		}
		if t.TapeStop != nil {
			*t.TapeStop = t.TapeStop.Clamp()
		}
		if t.Freeze != nil {
			*t.Freeze = t.Freeze.Clamp()
		}
		if t.Reverse != nil {
			*t.Reverse = t.Reverse.Clamp()
		}
		if t.Chaos != nil {
			*t.Chaos = t.Chaos.Clamp()
		}
	}
}

func (p *Performance) Validate() error {
	if len(p.Tracks) == 0 {
		return errors.New("performance has no tracks")
	}
	for i, t := range p.Tracks {
		for _, s := range t.Steps {
			if s < 0 {
				return fmt.Errorf("track %d (%s): negative step value", i, t.Name)
			}
		}
	}
	return nil
}

// Copy returns a deep copy of the performance.
func (p *Performance) Copy() Performance {
	tracks := make([]TrackSpec, len(p.Tracks))
	for i, t := range p.Tracks {
		tracks[i] = t.Copy()
	}
	ret := *p
	ret.Tracks = tracks
	return ret
}

func (t *TrackSpec) Copy() TrackSpec {
	ret := *t
	ret.Steps = append([]int(nil), t.Steps...)
	ret.Stutter = copyPtr(t.Stutter)
	ret.Bitcrush = copyPtr(t.Bitcrush)
	ret.TapeStop = copyPtr(t.TapeStop)
	ret.Freeze = copyPtr(t.Freeze)
	ret.Reverse = copyPtr(t.Reverse)
	ret.Chaos = copyPtr(t.Chaos)
	return ret
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
