package engine

import (
	"math"
	"sync"
	"testing"

	"github.com/CarlosNMK25/pulsar-v1-sub001/fx"
)

// collector records step events; the scheduler invokes callbacks from its
// own goroutine, so access is locked.
type collector struct {
	mu     sync.Mutex
	events []StepEvent
	bars   []int
}

func (c *collector) onStep(ev StepEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) onBar(bar int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bars = append(c.bars, bar)
}

func (c *collector) snapshot() []StepEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]StepEvent(nil), c.events...)
}

// newTestScheduler uses a 48 kHz clock so a 0.125 s step is an exact frame
// count.
func newTestScheduler() (*Scheduler, *fx.Clock, *collector) {
	broker := NewBroker()
	clock := fx.NewClock(48000)
	s := NewScheduler(broker, clock)
	c := &collector{}
	s.SubscribeStep(c.onStep)
	s.SubscribeBar(c.onBar)
	return s, clock, c
}

// runSteps advances the clock in step-sized chunks, pumping the scheduler,
// until at least n step events have been collected.
func runSteps(s *Scheduler, clock *fx.Clock, c *collector, n int) []StepEvent {
	for i := 0; i < 10*n; i++ {
		s.Pump()
		if len(c.snapshot()) >= n {
			break
		}
		clock.Advance(6000) // 0.125 s at 48 kHz
	}
	return c.snapshot()[:n]
}

func TestStepDurationFormula(t *testing.T) {
	s, _, _ := newTestScheduler()
	defer s.Close()
	for _, bpm := range []float64{20, 77, 120, 133.7, 300} {
		s.SetBPM(bpm)
		if got, want := s.stepDuration(), 60/bpm/4; got != want {
			t.Errorf("bpm=%v: stepDuration=%v, want %v", bpm, got, want)
		}
	}
	// out-of-range tempos clamp instead of rejecting
	s.SetBPM(1000)
	if got := s.BPM(); got != 300 {
		t.Errorf("bpm clamped to %v, want 300", got)
	}
	s.SetBPM(5)
	if got := s.BPM(); got != 20 {
		t.Errorf("bpm clamped to %v, want 20", got)
	}
}

func TestSixteenStepsSpanTwoSeconds(t *testing.T) {
	s, clock, c := newTestScheduler()
	defer s.Close()
	s.SetBPM(120)
	s.Start()
	events := runSteps(s, clock, c, 17)
	if got := events[16].Time - events[0].Time; got != 2.0 {
		t.Fatalf("16 steps at 120 BPM span %v s, want exactly 2.0", got)
	}
	for i, ev := range events {
		if ev.Step != i%GlobalSteps {
			t.Fatalf("event %d has step %d, want %d", i, ev.Step, i%GlobalSteps)
		}
	}
}

func TestPolymeterPositions(t *testing.T) {
	s, clock, c := newTestScheduler()
	defer s.Close()
	s.RegisterTrack(0, 3)
	s.RegisterTrack(1, 5)
	s.Start()
	events := runSteps(s, clock, c, 11)
	for n, ev := range events {
		for _, tp := range ev.Tracks {
			var want int
			switch tp.ID {
			case 0:
				want = n % 3
			case 1:
				want = n % 5
			}
			if tp.Position != want {
				t.Fatalf("tick %d track %d: position %d, want %d", n, tp.ID, tp.Position, want)
			}
		}
	}
	s.Stop()
	if s.TrackStep(0) != 0 || s.TrackStep(1) != 0 {
		t.Fatal("stop did not reset track positions")
	}
}

func TestSwingDelaysOddStepsOnly(t *testing.T) {
	s, clock, c := newTestScheduler()
	defer s.Close()
	s.SetBPM(120)
	s.SetSwing(0.5)
	s.Start()
	events := runSteps(s, clock, c, 8)
	base := events[0].Time
	for i, ev := range events {
		nominal := base + float64(i)*0.125
		offset := ev.Time - nominal
		if i%2 == 0 {
			if offset != 0 {
				t.Errorf("even step %d offset %v, want 0", i, offset)
			}
		} else {
			if math.Abs(offset-0.125*0.5*0.5) > 1e-12 {
				t.Errorf("odd step %d offset %v, want %v", i, offset, 0.125*0.5*0.5)
			}
		}
	}
}

func TestHumanizeJittersWithinBounds(t *testing.T) {
	// the jitter bound is a fixed ±20 ms at full humanize, independent of
	// tempo; the nominal grid is anchored at clock time 0 by Start, not at
	// the first event, which itself carries jitter
	for _, bpm := range []float64{120, 20} {
		s, clock, c := newTestScheduler()
		s.SetBPM(bpm)
		s.SetHumanize(1)
		s.Start()
		events := runSteps(s, clock, c, 32)
		stepDur := 60 / bpm / 4
		varied := false
		for i, ev := range events {
			offset := ev.Time - float64(i)*stepDur
			if math.Abs(offset) > humanizeMax+1e-12 {
				t.Fatalf("bpm=%v step %d humanize offset %v exceeds bound %v", bpm, i, offset, humanizeMax)
			}
			if offset != 0 {
				varied = true
			}
		}
		if !varied {
			t.Fatalf("bpm=%v: humanize=1 never moved a step", bpm)
		}
		s.Close()
	}
}

func TestBarCallbacksFireAtBarBoundaries(t *testing.T) {
	s, clock, c := newTestScheduler()
	defer s.Close()
	s.SetStepsPerBar(4)
	s.Start()
	runSteps(s, clock, c, 9)
	c.mu.Lock()
	bars := append([]int(nil), c.bars...)
	c.mu.Unlock()
	if len(bars) < 2 {
		t.Fatalf("expected at least 2 bars after 9 steps, got %d", len(bars))
	}
	if bars[0] != 1 || bars[1] != 2 {
		t.Fatalf("bar sequence %v, want 1, 2, ...", bars[:2])
	}
}

func TestPanickingSubscriberDoesNotHaltLoop(t *testing.T) {
	broker := NewBroker()
	clock := fx.NewClock(48000)
	s := NewScheduler(broker, clock)
	defer s.Close()
	c := &collector{}
	s.SubscribeStep(func(StepEvent) { panic("subscriber bug") })
	s.SubscribeStep(c.onStep)
	s.Start()
	events := runSteps(s, clock, c, 3)
	if len(events) != 3 {
		t.Fatalf("loop halted after panicking subscriber: %d events", len(events))
	}
	// the panic must have been reported
	sawAlert := false
drain:
	for {
		select {
		case msg := <-broker.ToMonitor:
			if a, ok := msg.Data.(Alert); ok && a.Priority == Error {
				sawAlert = true
			}
		default:
			break drain
		}
	}
	if !sawAlert {
		t.Fatal("no error alert for the panicking subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s, clock, c := newTestScheduler()
	defer s.Close()
	extra := &collector{}
	unsub := s.SubscribeStep(extra.onStep)
	s.Start()
	runSteps(s, clock, c, 2)
	unsub()
	unsub() // double unsubscribe is harmless
	before := len(extra.snapshot())
	runSteps(s, clock, c, 6)
	if got := len(extra.snapshot()); got != before {
		t.Fatalf("unsubscribed callback still invoked: %d -> %d", before, got)
	}
}

func TestPauseResumeSkipsMissedSteps(t *testing.T) {
	s, clock, c := newTestScheduler()
	defer s.Close()
	s.SetBPM(120)
	s.RegisterTrack(0, 8)
	s.Start()
	runSteps(s, clock, c, 4)
	s.Pause()
	if s.TrackStep(0) != 0 {
		t.Fatal("pause did not reset track positions")
	}
	count := len(c.snapshot())
	clock.Advance(48000) // a full second goes by while paused
	s.Pump()
	if len(c.snapshot()) != count {
		t.Fatal("paused scheduler still fired steps")
	}
	s.Resume()
	s.Pump()
	events := c.snapshot()
	if len(events) == count {
		t.Fatal("resume did not continue scheduling")
	}
	// the first post-resume step is anchored at the current render time,
	// not back-filled over the paused second
	if events[count].Time < clock.Now()-1e-9 {
		t.Fatalf("resume replayed missed steps: t=%v < now=%v", events[count].Time, clock.Now())
	}
}

func TestStartResetsCounters(t *testing.T) {
	s, clock, c := newTestScheduler()
	defer s.Close()
	s.RegisterTrack(0, 4)
	s.Start()
	runSteps(s, clock, c, 6)
	s.Start() // restart
	if s.CurrentStep() != 0 || s.TrackStep(0) != 0 || s.Bar() != 0 {
		t.Fatal("restart did not reset counters")
	}
}
