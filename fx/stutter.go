package fx

import (
	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

// Stutter is a fire-and-automate effect: it does no sample processing of
// its own, only schedules gating windows on the chain's gate parameter and
// a dry/wet rebalance around them. Because all the work is automation it is
// cheap enough to run on every track at once.
type Stutter struct {
	gate *Param
	dry  *Param
	wet  *Param
}

func NewStutter(gate, dry, wet *Param) *Stutter {
	return &Stutter{gate: gate, dry: dry, wet: wet}
}

// Trigger schedules the full stutter gesture starting at now (seconds on
// the render clock), resolving the division against the given BPM. It
// returns the total gesture duration. Control domain.
func (s *Stutter) Trigger(now, bpm float64, p pulsar.StutterParams) float64 {
	p = p.Clamp()
	window := p.Division.Seconds(bpm)
	repeats := p.RepeatCount
	if repeats < 1 {
		repeats = 1
	}
	duration := float64(repeats) * window

	// Each window: open at the decayed level, shut at 15% of the window,
	// ramp back to 80% of the level by 85% of the window.
	for i := 0; i < repeats; i++ {
		t := now + float64(i)*window
		level := 1 - p.Decay*float64(i)/float64(repeats)
		s.gate.SetValueAtTime(level, t)
		s.gate.SetValueAtTime(0, t+0.15*window)
		s.gate.LinearRampToValueAtTime(0.8*level, t+0.85*window)
	}
	s.gate.SetValueAtTime(1, now+duration)

	s.dry.SetValueAtTime(1-p.Mix*0.5, now)
	s.wet.SetValueAtTime(p.Mix, now)
	restore := now + duration + 0.05
	s.dry.SetValueAtTime(1, restore)
	s.wet.SetValueAtTime(0, restore)

	return duration
}

// Cancel removes all pending stutter automation from now on and restores
// the gains immediately. Idempotent.
func (s *Stutter) Cancel(now float64) {
	s.gate.CancelScheduledValues(now)
	s.dry.CancelScheduledValues(now)
	s.wet.CancelScheduledValues(now)
	s.gate.SetValueAtTime(1, now)
	s.dry.SetValueAtTime(1, now)
	s.wet.SetValueAtTime(0, now)
}
