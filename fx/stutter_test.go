package fx

import (
	"math"
	"testing"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

func TestStutterWindowTiming(t *testing.T) {
	gate := NewParam(1)
	dry := NewParam(1)
	wet := NewParam(0)
	s := NewStutter(gate, dry, wet)

	p := pulsar.StutterParams{
		Division:    pulsar.Div16,
		Decay:       0.5,
		Mix:         1,
		RepeatCount: 4,
		Probability: 1,
	}
	// 1/16 at 120 BPM is 0.125 s per window
	duration := s.Trigger(0, 120, p)
	if math.Abs(duration-0.5) > errorThreshold {
		t.Fatalf("gesture duration = %v, want 0.5", duration)
	}

	// window starts 0.125 s apart, levels decaying 1.0, 0.875, 0.75, 0.625
	for i, want := range []float64{1, 0.875, 0.75, 0.625} {
		at := float64(i) * 0.125
		if got := gate.ValueAt(at); math.Abs(got-want) > errorThreshold {
			t.Errorf("window %d open level = %v, want %v", i, got, want)
		}
		// gate shuts at 15% of each window
		if got := gate.ValueAt(at + 0.15*0.125); math.Abs(got) > errorThreshold {
			t.Errorf("window %d not shut at 15%%: %v", i, got)
		}
		// and ramps back to 80% of the level by 85%
		if got := gate.ValueAt(at + 0.85*0.125); math.Abs(got-0.8*want) > errorThreshold {
			t.Errorf("window %d ramp target = %v, want %v", i, got, 0.8*want)
		}
	}

	// gate restored after the gesture
	if got := gate.ValueAt(0.5); got != 1 {
		t.Errorf("gate after gesture = %v, want 1", got)
	}
}

func TestStutterDryWetRestore(t *testing.T) {
	gate := NewParam(1)
	dry := NewParam(1)
	wet := NewParam(0)
	s := NewStutter(gate, dry, wet)

	p := pulsar.DefaultStutterParams()
	p.Mix = 0.8
	duration := s.Trigger(1, 120, p)

	if got := dry.ValueAt(1); math.Abs(got-(1-0.8*0.5)) > errorThreshold {
		t.Errorf("dry during stutter = %v, want 0.6", got)
	}
	if got := wet.ValueAt(1); math.Abs(got-0.8) > errorThreshold {
		t.Errorf("wet during stutter = %v, want 0.8", got)
	}
	restore := 1 + duration + 0.05
	if got := dry.ValueAt(restore); got != 1 {
		t.Errorf("dry after restore = %v, want 1", got)
	}
	if got := wet.ValueAt(restore); got != 0 {
		t.Errorf("wet after restore = %v, want 0", got)
	}
}

func TestStutterCancelClearsPending(t *testing.T) {
	gate := NewParam(1)
	dry := NewParam(1)
	wet := NewParam(0)
	s := NewStutter(gate, dry, wet)

	s.Trigger(0, 120, pulsar.DefaultStutterParams())
	s.Cancel(0.05)
	s.Cancel(0.05) // idempotent
	if got := gate.ValueAt(0.2); got != 1 {
		t.Errorf("gate after cancel = %v, want 1", got)
	}
	if got := wet.ValueAt(10); got != 0 {
		t.Errorf("wet after cancel = %v, want 0", got)
	}
}

func TestTapeStopDuration(t *testing.T) {
	var ts TapeStop
	// the reference working point: mid duration, mid speed
	if got := ts.Duration(0.5, 0.5); math.Abs(got-(0.6/1.15)) > errorThreshold {
		t.Errorf("Duration(0.5, 0.5) = %v, want %v", got, 0.6/1.15)
	}
	// faster motor speed means a shorter stop
	if ts.Duration(0.5, 1) >= ts.Duration(0.5, 0) {
		t.Error("duration must shrink as speed grows")
	}
	// longer duration parameter means a longer stop
	if ts.Duration(1, 0.5) <= ts.Duration(0, 0.5) {
		t.Error("duration must grow with the duration parameter")
	}
}

func TestTapeStopGesture(t *testing.T) {
	tape := NewParam(1)
	ts := NewTapeStop(tape)

	p := pulsar.DefaultTapeStopParams()
	total := ts.Trigger(0, p)
	duration := total - tapeRestoreSeconds

	if got := tape.ValueAt(0); math.Abs(got-1) > errorThreshold {
		t.Errorf("gain at stop start = %v, want 1", got)
	}
	// strictly decreasing through the stop
	prev := 1.1
	for i := 0; i <= 10; i++ {
		at := duration * float64(i) / 10 * 0.999
		got := tape.ValueAt(at)
		if got > prev+errorThreshold {
			t.Fatalf("gain rose during the stop at t=%v: %v > %v", at, got, prev)
		}
		prev = got
	}
	// restored to unity after the ramp
	if got := tape.ValueAt(total); math.Abs(got-1) > errorThreshold {
		t.Errorf("gain after restore = %v, want 1", got)
	}
}

func TestTapeStopCurveShapes(t *testing.T) {
	for _, curve := range []pulsar.CurveType{
		pulsar.CurveLinear, pulsar.CurveExponential, pulsar.CurveLogarithmic, pulsar.CurveSCurve,
	} {
		pts := tapeStopCurve(curve, 0, 1)
		if len(pts) != 64 {
			t.Fatalf("%s: %d points, want 64", curve, len(pts))
		}
		if math.Abs(pts[0]-1) > errorThreshold {
			t.Errorf("%s: starts at %v, want 1", curve, pts[0])
		}
		for i := 1; i < len(pts); i++ {
			if pts[i] > pts[i-1]+errorThreshold {
				t.Errorf("%s: not monotonically decreasing at %d", curve, i)
				break
			}
		}
		if last := pts[len(pts)-1]; last <= 0 || last > 0.01 {
			t.Errorf("%s: floor = %v, want small positive", curve, last)
		}
	}
}
