// Package engine hosts the control-domain half of the glitch sequencer:
// the lookahead step scheduler, the per-track chaos loops, and the Engine
// context object that owns the render entry point. One Engine is one
// independent instance; nothing in this package is global.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
	"github.com/CarlosNMK25/pulsar-v1-sub001/fx"
	"github.com/CarlosNMK25/pulsar-v1-sub001/sampler"
)

const renderBlock = 512

type (
	// Engine owns the render clock, the scheduler and every track. Process
	// is its render-domain entry point; everything else runs in the
	// control domain and communicates with Process only through atomics
	// and the broker.
	Engine struct {
		broker *Broker
		clock  *fx.Clock
		sched  *Scheduler

		tracks atomic.Pointer[[]*Track]
		master *fx.Meter
		gain   atomic.Pointer[float64]

		// live is the chain external duplex input runs through; it exists
		// even when no duplex backend is attached so its params can be
		// configured up front.
		live *fx.Chain

		scratch pulsar.AudioBuffer
		liveBuf pulsar.AudioBuffer

		mu    sync.Mutex // guards chaos, control domain only
		chaos map[int]*chaosLoop

		unsubStep func()
	}

	// Track is one sequenced voice and its effect chain. The slice of
	// tracks is published whole on every performance load; individual
	// fields that change at runtime (chain params, bypass) are atomics
	// inside the chain.
	Track struct {
		ID     int
		Name   string
		Steps  []int
		Voice  pulsar.VoiceSpec
		Chain  *fx.Chain
		Voices *sampler.Sampler

		chaosParams atomic.Pointer[pulsar.ChaosParams]
	}

	stopAudioMsg struct{}
)

func NewEngine(sampleRate float64) *Engine {
	e := &Engine{
		broker:  NewBroker(),
		clock:   fx.NewClock(sampleRate),
		master:  fx.NewMeter(sampleRate),
		scratch: make(pulsar.AudioBuffer, renderBlock),
		chaos:   make(map[int]*chaosLoop),
	}
	e.live = fx.NewChain(e.clock, 104729)
	e.sched = NewScheduler(e.broker, e.clock)
	empty := []*Track{}
	e.tracks.Store(&empty)
	g := 1.0
	e.gain.Store(&g)
	e.unsubStep = e.sched.SubscribeStep(e.onStep)
	return e
}

func (e *Engine) Broker() *Broker       { return e.broker }
func (e *Engine) LiveChain() *fx.Chain  { return e.live }
func (e *Engine) Clock() *fx.Clock      { return e.clock }
func (e *Engine) Scheduler() *Scheduler { return e.sched }
func (e *Engine) SampleRate() float64   { return e.clock.SampleRate() }

// LoadPerformance replaces the whole track set from a performance file and
// applies its tempo state. Running chaos loops for dropped tracks are
// stopped.
func (e *Engine) LoadPerformance(perf pulsar.Performance) {
	perf.Normalize()
	e.StopAllChaos()

	tracks := make([]*Track, len(perf.Tracks))
	for i, ts := range perf.Tracks {
		t := &Track{
			ID:     i,
			Name:   ts.Name,
			Steps:  append([]int(nil), ts.Steps...),
			Voice:  ts.Voice.Clamp(),
			Chain:  fx.NewChain(e.clock, int64(i)*7919+1),
			Voices: sampler.NewSampler(e.clock.SampleRate()),
		}
		if ts.Stutter != nil {
			t.Chain.SetStutterParams(*ts.Stutter)
		}
		if ts.Bitcrush != nil {
			t.Chain.SetBitcrushParams(*ts.Bitcrush)
		}
		if ts.TapeStop != nil {
			t.Chain.SetTapeStopParams(*ts.TapeStop)
		}
		if ts.Freeze != nil {
			t.Chain.SetFreezeParams(*ts.Freeze)
		}
		if ts.Reverse != nil {
			t.Chain.SetReverseParams(*ts.Reverse)
		}
		cp := pulsar.DefaultChaosParams()
		if ts.Chaos != nil {
			cp = ts.Chaos.Clamp()
		}
		t.chaosParams.Store(&cp)
		t.Chain.SetBypass(ts.Bypass)
		e.sched.RegisterTrack(i, ts.Length)
		tracks[i] = t
	}
	e.tracks.Store(&tracks)

	e.sched.SetBPM(perf.BPM)
	e.sched.SetSwing(perf.Swing)
	e.sched.SetHumanize(perf.Humanize)
	e.sched.SetStepsPerBar(perf.StepsPerBar)
}

// onStep is the engine's own step subscriber: it converts scheduled step
// events into sample-accurate voice triggers.
func (e *Engine) onStep(ev StepEvent) {
	tracks := *e.tracks.Load()
	for _, tp := range ev.Tracks {
		if tp.ID < 0 || tp.ID >= len(tracks) {
			continue
		}
		t := tracks[tp.ID]
		if len(t.Steps) == 0 || t.Chain.Bypassed() {
			continue
		}
		v := t.Steps[tp.Position%len(t.Steps)]
		if v <= 0 {
			continue
		}
		spec := t.Voice
		if v > 1 { // velocity-scaled hit
			spec.Gain *= float64(pulsar.Clamp(v, 1, 127)) / 127
		}
		if !t.Voices.TriggerAt(ev.Time, spec) {
			e.broker.SendAlert("Sampler", fmt.Sprintf("trigger queue full on track %d", tp.ID), Warning)
		}
	}
}

// Process renders one block into buf: drains control messages, renders and
// processes every track, mixes to the output, meters it and advances the
// render clock. This is the only render-domain entry point.
func (e *Engine) Process(buf pulsar.AudioBuffer) {
	defer func() {
		if p := recover(); p != nil {
			buf.Zero()
			e.broker.SendAlert("EngineCrash", fmt.Sprintf("render panic: %v", p), Error)
		}
	}()
	e.processMessages()

	buf.Zero()
	tracks := *e.tracks.Load()
	startFrame := e.clock.Frames()
	for done := 0; done < len(buf); done += renderBlock {
		n := len(buf) - done
		if n > renderBlock {
			n = renderBlock
		}
		for _, t := range tracks {
			scratch := e.scratch[:n]
			scratch.Zero()
			t.Voices.Render(scratch, startFrame+int64(done))
			t.Chain.Process(scratch)
			for i := range scratch {
				buf[done+i][0] += scratch[i][0]
				buf[done+i][1] += scratch[i][1]
			}
		}
		e.clock.Advance(n)
	}

	gain := float32(*e.gain.Load())
	for i := range buf {
		buf[i][0] *= gain
		buf[i][1] *= gain
	}
	e.master.Analyze(buf)

	// hand a copy of the block to the monitor for scopes: borrow a pooled
	// buffer and drop it if the monitor is not listening
	bufPtr := e.broker.GetAudioBuffer()
	*bufPtr = append(*bufPtr, buf...)
	if !TrySend(e.broker.ToMonitor, MsgToMonitor{Data: bufPtr}) {
		e.broker.PutAudioBuffer(bufPtr)
	}
}

// ProcessDuplex runs external input through the live chain and mixes the
// sequenced tracks on top. The live chain is processed first so its
// automation reads the same clock position the sequenced chains will see
// in this block.
func (e *Engine) ProcessDuplex(in, out pulsar.AudioBuffer) {
	n := len(in)
	if n > len(out) {
		n = len(out)
	}
	if cap(e.liveBuf) < n {
		e.liveBuf = make(pulsar.AudioBuffer, n)
	}
	live := e.liveBuf[:n]
	copy(live, in[:n])
	for done := 0; done < n; done += renderBlock {
		m := n - done
		if m > renderBlock {
			m = renderBlock
		}
		e.live.Process(live[done : done+m])
	}

	e.Process(out)
	for i := 0; i < n; i++ {
		out[i][0] += live[i][0]
		out[i][1] += live[i][1]
	}
}

func (e *Engine) processMessages() {
	for {
		select {
		case msg := <-e.broker.ToEngine:
			switch msg.(type) {
			case stopAudioMsg:
				for _, t := range *e.tracks.Load() {
					t.Voices.Reset()
				}
			}
		default:
			return
		}
	}
}

// Start begins playback from step 0.
func (e *Engine) Start() { e.sched.Start() }

// Stop halts the transport, cancels all effect automation and silences the
// voices. Idempotent.
func (e *Engine) Stop() {
	e.sched.Stop()
	for _, t := range *e.tracks.Load() {
		t.Chain.CancelAll()
	}
	e.live.CancelAll()
	TrySend(e.broker.ToEngine, any(stopAudioMsg{}))
}

func (e *Engine) Pause()  { e.sched.Pause() }
func (e *Engine) Resume() { e.sched.Resume() }

// SetMasterGain publishes the output gain, clamped to 0..2.
func (e *Engine) SetMasterGain(gain float64) {
	g := pulsar.ClampF(gain, 0, 2)
	e.gain.Store(&g)
}

// MasterLevels returns the smoothed output meter levels.
func (e *Engine) MasterLevels() (rms, peak [2]float32) { return e.master.Levels() }

func (e *Engine) Tracks() []*Track { return *e.tracks.Load() }

// ChaosParams returns the track's current chaos parameters.
func (t *Track) ChaosParams() pulsar.ChaosParams { return *t.chaosParams.Load() }

func (e *Engine) track(id int) (*Track, bool) {
	tracks := *e.tracks.Load()
	if id < 0 || id >= len(tracks) {
		return nil, false
	}
	return tracks[id], true
}

// SetBypass toggles one track's chain; unknown ids are ignored.
func (e *Engine) SetBypass(trackID int, bypass bool) {
	if t, ok := e.track(trackID); ok {
		t.Chain.SetBypass(bypass)
	}
}

func (e *Engine) SetStutterParams(trackID int, p pulsar.StutterParams) {
	if t, ok := e.track(trackID); ok {
		t.Chain.SetStutterParams(p)
	}
}

func (e *Engine) SetBitcrushParams(trackID int, p pulsar.BitcrushParams) {
	if t, ok := e.track(trackID); ok {
		t.Chain.SetBitcrushParams(p)
	}
}

func (e *Engine) SetTapeStopParams(trackID int, p pulsar.TapeStopParams) {
	if t, ok := e.track(trackID); ok {
		t.Chain.SetTapeStopParams(p)
	}
}

func (e *Engine) SetFreezeParams(trackID int, p pulsar.FreezeParams) {
	if t, ok := e.track(trackID); ok {
		t.Chain.SetFreezeParams(p)
	}
}

func (e *Engine) SetReverseParams(trackID int, p pulsar.ReverseParams) {
	if t, ok := e.track(trackID); ok {
		t.Chain.SetReverseParams(p)
	}
}

func (e *Engine) SetChaosParams(trackID int, p pulsar.ChaosParams) {
	if t, ok := e.track(trackID); ok {
		cp := p.Clamp()
		t.chaosParams.Store(&cp)
	}
}

func (e *Engine) TriggerStutter(trackID int) bool {
	if t, ok := e.track(trackID); ok {
		return t.Chain.TriggerStutter(e.sched.BPM())
	}
	return false
}

func (e *Engine) TriggerTapeStop(trackID int) bool {
	if t, ok := e.track(trackID); ok {
		return t.Chain.TriggerTapeStop()
	}
	return false
}

func (e *Engine) TriggerBitcrush(trackID int, duration float64, sustain bool) bool {
	if t, ok := e.track(trackID); ok {
		return t.Chain.TriggerBitcrush(duration, sustain)
	}
	return false
}

func (e *Engine) TriggerFreeze(trackID int, sustain bool) bool {
	if t, ok := e.track(trackID); ok {
		return t.Chain.TriggerFreeze(sustain)
	}
	return false
}

func (e *Engine) TriggerReverse(trackID int) bool {
	if t, ok := e.track(trackID); ok {
		return t.Chain.TriggerReverse()
	}
	return false
}

func (e *Engine) StopBitcrush(trackID int) {
	if t, ok := e.track(trackID); ok {
		t.Chain.StopBitcrush()
	}
}

func (e *Engine) StopFreeze(trackID int) {
	if t, ok := e.track(trackID); ok {
		t.Chain.StopFreeze()
	}
}

// StartChaos spawns the randomized trigger loop for one track. Starting an
// already-chaotic track is a no-op.
func (e *Engine) StartChaos(trackID int) {
	t, ok := e.track(trackID)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, running := e.chaos[trackID]; running {
		return
	}
	e.chaos[trackID] = startChaos(t.Chain,
		func() pulsar.ChaosParams { return *t.chaosParams.Load() },
		e.sched.BPM, e.broker, trackID)
}

// StopChaos cancels one track's chaos loop. Idempotent.
func (e *Engine) StopChaos(trackID int) {
	e.mu.Lock()
	c := e.chaos[trackID]
	delete(e.chaos, trackID)
	e.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}

// StopAllChaos cancels every running chaos loop.
func (e *Engine) StopAllChaos() {
	e.mu.Lock()
	loops := make([]*chaosLoop, 0, len(e.chaos))
	for id, c := range e.chaos {
		loops = append(loops, c)
		delete(e.chaos, id)
	}
	e.mu.Unlock()
	for _, c := range loops {
		c.Stop()
	}
}

// Render renders the given number of bars offline, pumping the scheduler
// manually so rendering is not bound to real time.
func (e *Engine) Render(bars int) pulsar.AudioBuffer {
	e.Start()
	stepDur := 60 / e.sched.BPM() / 4
	total := int(float64(bars*e.sched.StepsPerBar()) * stepDur * e.clock.SampleRate())
	out := make(pulsar.AudioBuffer, 0, total)
	block := make(pulsar.AudioBuffer, renderBlock)
	for len(out) < total {
		e.sched.Pump()
		n := total - len(out)
		if n > renderBlock {
			n = renderBlock
		}
		e.Process(block[:n])
		out = append(out, block[:n]...)
	}
	e.Stop()
	return out
}

// Close stops everything and shuts the scheduler goroutine down.
func (e *Engine) Close() {
	e.Stop()
	e.StopAllChaos()
	e.unsubStep()
	e.sched.Close()
}
