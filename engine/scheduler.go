package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
	"github.com/CarlosNMK25/pulsar-v1-sub001/fx"
)

const (
	// controlInterval is the coarse control-domain timer cadence; lookahead
	// is how far ahead of the render clock steps are pre-scheduled. The gap
	// between them hides timer jitter: callbacks get a target render time
	// and schedule sample-accurate automation against it instead of timing
	// themselves.
	controlInterval = 25 * time.Millisecond
	lookahead       = 0.1

	// humanizeMax caps humanize jitter at ±20 ms regardless of tempo, a
	// small fraction of even the shortest step duration
	humanizeMax = 0.020

	// GlobalSteps is the legacy global step cycle; per-track counters are
	// the source of truth for polymetric tracks.
	GlobalSteps = 16

	DefaultStepsPerBar = 16
)

type (
	// Scheduler pre-schedules step events ahead of the render clock. A
	// 25 ms ticker goroutine walks nextStepTime forward while it is within
	// the lookahead window, invoking step subscribers with the target
	// render time of each step. Subscribers run in the control domain and
	// are individually guarded: a panicking subscriber is reported via the
	// broker and the loop keeps going.
	Scheduler struct {
		broker *Broker
		clock  *fx.Clock

		mu           sync.Mutex
		bpm          float64
		swing        float64
		humanize     float64
		stepsPerBar  int
		tracks       map[int]*trackCounter
		stepSubs     []stepSub
		barSubs      []barSub
		nextSubID    uint64
		running      bool
		paused       bool
		nextStepTime float64
		totalSteps   int
		bar          int
		rng          *rand.Rand
	}

	// StepEvent is what step subscribers receive: the global step index,
	// the render-clock time the step should sound at, and every registered
	// track's position at that step.
	StepEvent struct {
		Step   int     // global index, 0..15
		Time   float64 // target render time in seconds
		Tracks []TrackPosition
	}

	TrackPosition struct {
		ID       int
		Position int
	}

	StepCallback func(StepEvent)
	BarCallback  func(bar int)

	trackCounter struct {
		length   int
		position int
	}

	stepSub struct {
		id uint64
		cb StepCallback
	}

	barSub struct {
		id uint64
		cb BarCallback
	}
)

// NewScheduler creates a scheduler and starts its control loop. The loop
// runs until broker.CloseScheduler receives a message; FinishedScheduler is
// closed once it has exited.
func NewScheduler(broker *Broker, clock *fx.Clock) *Scheduler {
	s := &Scheduler{
		broker:      broker,
		clock:       clock,
		bpm:         120,
		stepsPerBar: DefaultStepsPerBar,
		tracks:      make(map[int]*trackCounter),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	go s.loop()
	return s
}

func (s *Scheduler) loop() {
	defer close(s.broker.FinishedScheduler)
	ticker := time.NewTicker(controlInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.broker.CloseScheduler:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick advances the schedule while it is inside the lookahead window.
// Counters advance under the mutex; the callbacks themselves run outside
// it, so a subscriber may freely call back into the scheduler.
func (s *Scheduler) tick() {
	for {
		s.mu.Lock()
		if !s.running || s.paused || s.nextStepTime >= s.clock.Now()+lookahead {
			s.mu.Unlock()
			return
		}
		ev, stepCbs, barCbs, bar := s.fireStepLocked()
		s.mu.Unlock()

		for _, cb := range stepCbs {
			s.guardStep(cb, ev)
		}
		for _, cb := range barCbs {
			s.guardBar(cb, bar)
		}
	}
}

// fireStepLocked computes one step's event and advances every counter,
// returning the callbacks to invoke once the mutex is released. Caller
// holds s.mu.
func (s *Scheduler) fireStepLocked() (ev StepEvent, stepCbs []StepCallback, barCbs []BarCallback, bar int) {
	step := s.totalSteps % GlobalSteps
	at := s.nextStepTime + s.swingOffset(step) + s.humanizeOffset()

	ev = StepEvent{Step: step, Time: at, Tracks: make([]TrackPosition, 0, len(s.tracks))}
	for id, tc := range s.tracks {
		ev.Tracks = append(ev.Tracks, TrackPosition{ID: id, Position: tc.position})
	}
	stepCbs = make([]StepCallback, len(s.stepSubs))
	for i, sub := range s.stepSubs {
		stepCbs[i] = sub.cb
	}

	s.nextStepTime += s.stepDuration()
	s.totalSteps++
	for _, tc := range s.tracks {
		tc.position = (tc.position + 1) % tc.length
	}
	TrySend(s.broker.ToMonitor, MsgToMonitor{HasPosition: true, Step: s.totalSteps % GlobalSteps, Bar: s.bar, Playing: true})

	if s.totalSteps%s.stepsPerBar == 0 {
		s.bar++
		bar = s.bar
		barCbs = make([]BarCallback, len(s.barSubs))
		for i, sub := range s.barSubs {
			barCbs[i] = sub.cb
		}
	}
	return ev, stepCbs, barCbs, bar
}

func (s *Scheduler) guardStep(cb StepCallback, ev StepEvent) {
	defer func() {
		if p := recover(); p != nil {
			s.broker.SendAlert("StepCallback", fmt.Sprintf("step callback panicked: %v", p), Error)
		}
	}()
	cb(ev)
}

func (s *Scheduler) guardBar(cb BarCallback, bar int) {
	defer func() {
		if p := recover(); p != nil {
			s.broker.SendAlert("BarCallback", fmt.Sprintf("bar callback panicked: %v", p), Error)
		}
	}()
	cb(bar)
}

func (s *Scheduler) stepDuration() float64 {
	return 60 / s.bpm / 4
}

// swingOffset delays odd steps by half the swing fraction of a step.
func (s *Scheduler) swingOffset(step int) float64 {
	if step%2 == 0 {
		return 0
	}
	return s.stepDuration() * s.swing * 0.5
}

// humanizeOffset jitters a step by up to ±20 ms at full humanize. The
// bound is fixed, not tempo-relative, so adjacent steps can never reorder.
func (s *Scheduler) humanizeOffset() float64 {
	if s.humanize == 0 {
		return 0
	}
	span := humanizeMax * s.humanize
	return (s.rng.Float64()*2 - 1) * span
}

// SetBPM clamps and applies the tempo. Takes effect on the next scheduled
// step; already-scheduled steps keep their times.
func (s *Scheduler) SetBPM(bpm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bpm = pulsar.ClampF(bpm, pulsar.MinBPM, pulsar.MaxBPM)
}

func (s *Scheduler) BPM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

func (s *Scheduler) SetSwing(swing float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swing = pulsar.Clamp01(swing)
}

func (s *Scheduler) SetHumanize(humanize float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.humanize = pulsar.Clamp01(humanize)
}

func (s *Scheduler) SetStepsPerBar(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.stepsPerBar = n
}

func (s *Scheduler) StepsPerBar() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepsPerBar
}

// Pump runs one lookahead pass immediately. Offline rendering calls this
// between blocks instead of waiting for the control ticker.
func (s *Scheduler) Pump() { s.tick() }

// RegisterTrack creates or updates a track counter. Lengths are clamped to
// the polymeter range; re-registering keeps the current position when it
// still fits the new length.
func (s *Scheduler) RegisterTrack(id, length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	length = pulsar.Clamp(length, pulsar.MinTrackLength, pulsar.MaxTrackLength)
	if tc, ok := s.tracks[id]; ok {
		tc.length = length
		tc.position %= length
		return
	}
	s.tracks[id] = &trackCounter{length: length}
}

// SetTrackLength is RegisterTrack under the name the UI layer uses.
func (s *Scheduler) SetTrackLength(id, length int) { s.RegisterTrack(id, length) }

// SubscribeStep registers a step callback and returns its unsubscribe
// function. Unsubscribing twice is harmless.
func (s *Scheduler) SubscribeStep(cb StepCallback) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.stepSubs = append(s.stepSubs, stepSub{id: id, cb: cb})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.stepSubs {
			if sub.id == id {
				s.stepSubs = append(s.stepSubs[:i], s.stepSubs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeBar registers a bar-boundary callback and returns its
// unsubscribe function.
func (s *Scheduler) SubscribeBar(cb BarCallback) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.barSubs = append(s.barSubs, barSub{id: id, cb: cb})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.barSubs {
			if sub.id == id {
				s.barSubs = append(s.barSubs[:i], s.barSubs[i+1:]...)
				return
			}
		}
	}
}

// Start resets all counters and begins scheduling from the current render
// time. Starting an already-running scheduler restarts it from step 0.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCountersLocked()
	s.nextStepTime = s.clock.Now()
	s.running = true
	s.paused = false
	TrySend(s.broker.ToMonitor, MsgToMonitor{Reset: true, Playing: true})
}

// Stop halts scheduling and resets every counter. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.paused = false
	s.resetCountersLocked()
	TrySend(s.broker.ToMonitor, MsgToMonitor{HasPosition: true, Playing: false})
}

// Pause halts scheduling and resets per-track positions; the already
// pre-scheduled steps will still sound as they were handed out before the
// pause. Idempotent.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.paused = true
	for _, tc := range s.tracks {
		tc.position = 0
	}
}

// Resume continues a paused scheduler from the current render time; the
// steps that would have fired while paused are skipped, not replayed.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || !s.paused {
		return
	}
	s.paused = false
	s.nextStepTime = s.clock.Now()
}

func (s *Scheduler) resetCountersLocked() {
	s.totalSteps = 0
	s.bar = 0
	for _, tc := range s.tracks {
		tc.position = 0
	}
}

func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.paused
}

// CurrentStep returns the global step index, 0..15.
func (s *Scheduler) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSteps % GlobalSteps
}

// TrackStep returns the per-track position, or 0 for unknown tracks.
func (s *Scheduler) TrackStep(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tc, ok := s.tracks[id]; ok {
		return tc.position
	}
	return 0
}

func (s *Scheduler) Bar() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bar
}

// Close shuts the control loop down and waits briefly for it to finish.
func (s *Scheduler) Close() {
	TrySend(s.broker.CloseScheduler, struct{}{})
	TimeoutReceive(s.broker.FinishedScheduler, 3*time.Second)
}
