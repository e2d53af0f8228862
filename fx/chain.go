package fx

import (
	"math/rand"
	"sync/atomic"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

// Chain is one track's complete effect path: the block processors
// (bitcrush, freeze, reverse), the automation-driven gains (stutter gate,
// dry/wet balance, tape-stop), and a level meter. Trigger methods run in
// the control domain and apply each effect's probability gate; Process
// runs in the render domain.
type Chain struct {
	clock  *Clock
	bypass atomic.Bool

	gate *Param
	dry  *Param
	wet  *Param
	tape *Param

	stutter  *Stutter
	tapeStop *TapeStop
	crush    *Bitcrush
	freeze   *Freeze
	reverse  *Reverse
	meter    *Meter

	stutterParams atomic.Pointer[pulsar.StutterParams]
	tapeParams    atomic.Pointer[pulsar.TapeStopParams]
}

func NewChain(clock *Clock, seed int64) *Chain {
	c := &Chain{
		clock:   clock,
		gate:    NewParam(1),
		dry:     NewParam(1),
		wet:     NewParam(0),
		tape:    NewParam(1),
		crush:   NewBitcrush(clock.SampleRate(), seed),
		freeze:  NewFreeze(clock.SampleRate(), seed+100),
		reverse: NewReverse(clock.SampleRate()),
		meter:   NewMeter(clock.SampleRate()),
	}
	c.stutter = NewStutter(c.gate, c.dry, c.wet)
	c.tapeStop = NewTapeStop(c.tape)
	sp := pulsar.DefaultStutterParams()
	tp := pulsar.DefaultTapeStopParams()
	c.stutterParams.Store(&sp)
	c.tapeParams.Store(&tp)
	return c
}

// Process runs the whole chain over the block in place and advances the
// meter. Bypassed chains pass audio through untouched but keep metering so
// the UI stays live. Render domain.
func (c *Chain) Process(buf pulsar.AudioBuffer) {
	if !c.bypass.Load() {
		c.crush.Process(buf)
		c.freeze.Process(buf)
		c.reverse.Process(buf)

		t := c.clock.Now()
		dt := 1 / c.clock.SampleRate()
		for i := range buf {
			g := float32(c.dry.value(t) + c.wet.value(t)*c.gate.value(t))
			g *= float32(c.tape.value(t))
			buf[i][0] *= g
			buf[i][1] *= g
			t += dt
		}
	}
	c.meter.Analyze(buf)
}

// SetBypass toggles the chain. Engaging bypass cancels every pending and
// running effect so un-bypassing starts clean.
func (c *Chain) SetBypass(bypass bool) {
	was := c.bypass.Swap(bypass)
	if bypass && !was {
		c.CancelAll()
	}
}

func (c *Chain) Bypassed() bool { return c.bypass.Load() }

// CancelAll stops all running effects and clears pending automation.
// Idempotent; safe to call at any time from the control domain.
func (c *Chain) CancelAll() {
	now := c.clock.Now()
	c.stutter.Cancel(now)
	c.tapeStop.Cancel(now)
	c.crush.Stop()
	c.freeze.Stop()
	c.reverse.Stop()
}

func (c *Chain) SetStutterParams(p pulsar.StutterParams) {
	p = p.Clamp()
	c.stutterParams.Store(&p)
}

func (c *Chain) SetTapeStopParams(p pulsar.TapeStopParams) {
	p = p.Clamp()
	c.tapeParams.Store(&p)
}

func (c *Chain) SetBitcrushParams(p pulsar.BitcrushParams) { c.crush.SetParams(p) }
func (c *Chain) SetFreezeParams(p pulsar.FreezeParams)     { c.freeze.SetParams(p) }
func (c *Chain) SetReverseParams(p pulsar.ReverseParams)   { c.reverse.SetParams(p) }

func (c *Chain) StutterParams() pulsar.StutterParams   { return *c.stutterParams.Load() }
func (c *Chain) TapeStopParams() pulsar.TapeStopParams { return *c.tapeParams.Load() }
func (c *Chain) BitcrushParams() pulsar.BitcrushParams { return c.crush.Params() }
func (c *Chain) FreezeParams() pulsar.FreezeParams     { return c.freeze.Params() }
func (c *Chain) ReverseParams() pulsar.ReverseParams   { return c.reverse.Params() }

// TriggerStutter fires a stutter gesture against the given BPM. Returns
// false when the probability gate or bypass skipped it.
func (c *Chain) TriggerStutter(bpm float64) bool {
	return c.TriggerStutterAt(c.clock.Now(), bpm)
}

// TriggerStutterAt schedules the stutter to start at the given render-clock
// time, letting lookahead callers line the gesture up with a step boundary.
func (c *Chain) TriggerStutterAt(at, bpm float64) bool {
	p := *c.stutterParams.Load()
	if c.bypass.Load() || !chance(p.Probability) {
		return false
	}
	c.stutter.Trigger(at, bpm, p)
	return true
}

// TriggerTapeStop fires a tape-stop gesture.
func (c *Chain) TriggerTapeStop() bool {
	return c.TriggerTapeStopAt(c.clock.Now())
}

// TriggerTapeStopAt schedules the tape-stop to start at the given
// render-clock time.
func (c *Chain) TriggerTapeStopAt(at float64) bool {
	p := *c.tapeParams.Load()
	if c.bypass.Load() || !chance(p.Probability) {
		return false
	}
	c.tapeStop.Trigger(at, p)
	return true
}

// TriggerBitcrush engages the crusher for duration seconds, or until Stop
// when sustain is set.
func (c *Chain) TriggerBitcrush(duration float64, sustain bool) bool {
	if c.bypass.Load() || !chance(c.crush.Params().Probability) {
		return false
	}
	c.crush.Trigger(duration, sustain)
	return true
}

// TriggerFreeze snapshots the capture ring and starts grain playback.
func (c *Chain) TriggerFreeze(sustain bool) bool {
	if c.bypass.Load() || !chance(c.freeze.Params().Probability) {
		return false
	}
	c.freeze.Trigger(sustain)
	return true
}

// TriggerReverse starts a reverse capture.
func (c *Chain) TriggerReverse() bool {
	if c.bypass.Load() || !chance(c.reverse.Params().Probability) {
		return false
	}
	c.reverse.Trigger()
	return true
}

func (c *Chain) StopBitcrush() { c.crush.Stop() }
func (c *Chain) StopFreeze()   { c.freeze.Stop() }
func (c *Chain) StopReverse()  { c.reverse.Stop() }

// Levels returns the chain's smoothed output levels.
func (c *Chain) Levels() (rms, peak [2]float32) { return c.meter.Levels() }

// chance rolls the probability gate shared by every trigger path.
func chance(probability float64) bool {
	if probability >= 1 {
		return true
	}
	if probability <= 0 {
		return false
	}
	return rand.Float64() < probability
}
