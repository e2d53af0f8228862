package fx

import (
	"math"
	"testing"
)

const errorThreshold = 1e-4

func TestParamBaseValue(t *testing.T) {
	p := NewParam(0.7)
	if got := p.ValueAt(0); got != 0.7 {
		t.Fatalf("base value: got %v, want 0.7", got)
	}
	if got := p.ValueAt(100); got != 0.7 {
		t.Fatalf("base value at later time: got %v, want 0.7", got)
	}
}

func TestParamFreshRenderPathReturnsBase(t *testing.T) {
	// a fresh param has an empty schedule; the cursor fast path must not
	// index into it
	p := NewParam(0.7)
	for _, tm := range []float64{0, 0.01, 1, 100} {
		if got := p.value(tm); got != 0.7 {
			t.Fatalf("empty schedule at t=%v: got %v, want 0.7", tm, got)
		}
	}
}

func TestParamSetValueAtTime(t *testing.T) {
	p := NewParam(1)
	p.SetValueAtTime(0.5, 1.0)
	if got := p.ValueAt(0.999); got != 1 {
		t.Errorf("before set: got %v, want 1", got)
	}
	if got := p.ValueAt(1.0); got != 0.5 {
		t.Errorf("at set time: got %v, want 0.5", got)
	}
	if got := p.ValueAt(5); got != 0.5 {
		t.Errorf("after set: got %v, want 0.5", got)
	}
}

func TestParamLinearRamp(t *testing.T) {
	p := NewParam(0)
	p.SetValueAtTime(0, 0)
	p.LinearRampToValueAtTime(1, 2)
	for _, tc := range []struct{ t, want float64 }{
		{0, 0}, {0.5, 0.25}, {1, 0.5}, {2, 1}, {3, 1},
	} {
		if got := p.ValueAt(tc.t); math.Abs(got-tc.want) > errorThreshold {
			t.Errorf("t=%v: got %v, want %v", tc.t, got, tc.want)
		}
	}
}

func TestParamExponentialRamp(t *testing.T) {
	p := NewParam(1)
	p.SetValueAtTime(1, 0)
	p.ExponentialRampToValueAtTime(0.01, 1)
	// geometric midpoint of 1 and 0.01
	if got := p.ValueAt(0.5); math.Abs(got-0.1) > errorThreshold {
		t.Errorf("midpoint: got %v, want 0.1", got)
	}
	if got := p.ValueAt(1); math.Abs(got-0.01) > errorThreshold {
		t.Errorf("endpoint: got %v, want 0.01", got)
	}
}

func TestParamExponentialRampFloorsZero(t *testing.T) {
	p := NewParam(1)
	p.ExponentialRampToValueAtTime(0, 1)
	if got := p.ValueAt(1); got <= 0 {
		t.Fatalf("exponential target must stay positive, got %v", got)
	}
}

func TestParamValueCurve(t *testing.T) {
	p := NewParam(1)
	curve := []float64{1, 0.5, 0}
	p.SetValueCurveAtTime(curve, 1, 2)
	for _, tc := range []struct{ t, want float64 }{
		{1, 1}, {2, 0.5}, {2.5, 0.25}, {3, 0}, {4, 0},
	} {
		if got := p.ValueAt(tc.t); math.Abs(got-tc.want) > errorThreshold {
			t.Errorf("t=%v: got %v, want %v", tc.t, got, tc.want)
		}
	}
}

func TestParamCurveIsCopied(t *testing.T) {
	p := NewParam(1)
	curve := []float64{1, 0}
	p.SetValueCurveAtTime(curve, 0, 1)
	curve[1] = 123
	if got := p.ValueAt(1); got != 0 {
		t.Fatalf("mutating the caller's slice changed the schedule: got %v", got)
	}
}

func TestParamCancelScheduledValues(t *testing.T) {
	p := NewParam(1)
	p.SetValueAtTime(0.5, 1)
	p.SetValueAtTime(0.25, 2)
	p.CancelScheduledValues(1.5)
	if got := p.ValueAt(3); got != 0.5 {
		t.Fatalf("after cancel: got %v, want 0.5 (event at t=2 should be gone)", got)
	}
}

func TestParamRenderCursorMatchesValueAt(t *testing.T) {
	p := NewParam(0)
	p.SetValueAtTime(0, 0)
	p.LinearRampToValueAtTime(1, 0.5)
	p.SetValueAtTime(0.2, 0.7)
	p.ExponentialRampToValueAtTime(0.8, 1.2)
	for i := 0; i <= 150; i++ {
		tm := float64(i) * 0.01
		want := p.ValueAt(tm)
		if got := p.value(tm); math.Abs(got-want) > errorThreshold {
			t.Fatalf("t=%v: cursor path got %v, full search got %v", tm, got, want)
		}
	}
}

func TestParamRampAfterCurve(t *testing.T) {
	p := NewParam(1)
	p.SetValueCurveAtTime([]float64{1, 0.1}, 0, 1)
	p.LinearRampToValueAtTime(1, 2)
	// ramp should start from the curve's final point
	if got := p.ValueAt(1.5); math.Abs(got-0.55) > errorThreshold {
		t.Fatalf("restore midpoint: got %v, want 0.55", got)
	}
}
