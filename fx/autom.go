package fx

import (
	"math"
	"sort"
	"sync/atomic"
)

type (
	// Param is a single automatable scalar, e.g. one gain in a dry/wet
	// pair. The control domain schedules value changes against the render
	// clock; the render domain evaluates the schedule sample by sample.
	//
	// Scheduling follows the usual audio-graph semantics: a set value
	// takes effect at its time, a ramp interpolates from the previous
	// event to its target time, a value curve spreads a fixed table of
	// points over a duration. The schedule is immutable once published;
	// every mutation builds a new event list and publishes it whole, so
	// the render domain never observes a half-edited schedule.
	Param struct {
		base  float64
		sched atomic.Pointer[schedule]

		// render-domain cursor, touched only inside value()
		cursor  int
		lastGen uint64
	}

	schedule struct {
		gen    uint64
		events []autoEvent
	}

	autoEvent struct {
		kind     eventKind
		time     float64
		value    float64   // target for set/ramp
		curve    []float64 // valueCurve points
		duration float64   // valueCurve span
	}

	eventKind int
)

const (
	evSet eventKind = iota
	evLinearRamp
	evExpRamp
	evCurve
)

// NewParam creates a parameter resting at the given base value.
func NewParam(base float64) *Param {
	p := &Param{base: base, cursor: -1}
	p.sched.Store(&schedule{})
	return p
}

func (p *Param) SetValueAtTime(value, time float64) {
	p.insert(autoEvent{kind: evSet, time: time, value: value})
}

func (p *Param) LinearRampToValueAtTime(value, time float64) {
	p.insert(autoEvent{kind: evLinearRamp, time: time, value: value})
}

func (p *Param) ExponentialRampToValueAtTime(value, time float64) {
	if value == 0 { // exponential ramps cannot reach zero
		value = 1e-4
	}
	p.insert(autoEvent{kind: evExpRamp, time: time, value: value})
}

// SetValueCurveAtTime spreads the curve points evenly over [time,
// time+duration]. The curve is copied; the caller may reuse its slice.
func (p *Param) SetValueCurveAtTime(curve []float64, time, duration float64) {
	if len(curve) == 0 || duration <= 0 {
		return
	}
	c := append([]float64(nil), curve...)
	p.insert(autoEvent{kind: evCurve, time: time, curve: c, duration: duration})
}

// CancelScheduledValues drops every event at or after the given time.
func (p *Param) CancelScheduledValues(after float64) {
	old := p.sched.Load()
	events := make([]autoEvent, 0, len(old.events))
	for _, ev := range old.events {
		if ev.time < after {
			events = append(events, ev)
		}
	}
	p.sched.Store(&schedule{gen: old.gen + 1, events: events})
}

// Reset cancels everything and pins the parameter to the given value from
// the given time on.
func (p *Param) Reset(value, time float64) {
	old := p.sched.Load()
	p.sched.Store(&schedule{gen: old.gen + 1, events: []autoEvent{{kind: evSet, time: time, value: value}}})
}

func (p *Param) insert(ev autoEvent) {
	old := p.sched.Load()
	events := make([]autoEvent, len(old.events), len(old.events)+1)
	copy(events, old.events)
	events = append(events, ev)
	sort.SliceStable(events, func(i, j int) bool { return events[i].time < events[j].time })
	p.sched.Store(&schedule{gen: old.gen + 1, events: events})
}

// ValueAt evaluates the schedule at time t. Safe to call from any goroutine;
// does a full search of the event list.
func (p *Param) ValueAt(t float64) float64 {
	s := p.sched.Load()
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].time > t }) - 1
	return p.eval(s.events, i, t)
}

// value is the render-domain fast path: t must be non-decreasing between
// schedule changes, so the cursor only moves forward.
func (p *Param) value(t float64) float64 {
	s := p.sched.Load()
	if s.gen != p.lastGen {
		p.lastGen = s.gen
		p.cursor = sort.Search(len(s.events), func(i int) bool { return s.events[i].time > t }) - 1
	}
	for p.cursor+1 < len(s.events) && s.events[p.cursor+1].time <= t {
		p.cursor++
	}
	return p.eval(s.events, p.cursor, t)
}

// eval computes the value at t given that events[i] is the last event with
// time <= t (i may be -1).
func (p *Param) eval(events []autoEvent, i int, t float64) float64 {
	prevTime, prevValue := 0.0, p.base
	if i >= len(events) {
		i = len(events) - 1
	}
	if i >= 0 {
		ev := events[i]
		switch ev.kind {
		case evCurve:
			if t < ev.time+ev.duration {
				return curvePoint(ev.curve, (t-ev.time)/ev.duration)
			}
			prevTime, prevValue = ev.time+ev.duration, ev.curve[len(ev.curve)-1]
		default:
			prevTime, prevValue = ev.time, ev.value
		}
	}
	if i+1 < len(events) {
		next := events[i+1]
		switch next.kind {
		case evLinearRamp:
			if next.time <= prevTime {
				return next.value
			}
			frac := (t - prevTime) / (next.time - prevTime)
			return prevValue + (next.value-prevValue)*frac
		case evExpRamp:
			if next.time <= prevTime || prevValue <= 0 {
				return next.value
			}
			frac := (t - prevTime) / (next.time - prevTime)
			return prevValue * math.Pow(next.value/prevValue, frac)
		}
	}
	return prevValue
}

// curvePoint linearly interpolates a normalized position in [0,1) over the
// curve points.
func curvePoint(curve []float64, pos float64) float64 {
	if pos <= 0 {
		return curve[0]
	}
	f := pos * float64(len(curve)-1)
	i := int(f)
	if i >= len(curve)-1 {
		return curve[len(curve)-1]
	}
	frac := f - float64(i)
	return curve[i] + (curve[i+1]-curve[i])*frac
}
