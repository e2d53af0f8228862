package fx

import (
	"math"
	"testing"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

func TestQuantizeFourBits(t *testing.T) {
	if got := Quantize(0.37, 4); got != 0.375 {
		t.Fatalf("Quantize(0.37, 4) = %v, want 0.375", got)
	}
}

func TestQuantizeIdempotent(t *testing.T) {
	for bits := 1; bits <= 16; bits++ {
		for _, v := range []float32{-1, -0.731, -0.5, 0, 0.123, 0.37, 0.999, 1} {
			once := Quantize(v, bits)
			if twice := Quantize(once, bits); twice != once {
				t.Fatalf("bits=%d v=%v: quantizing twice changed %v to %v", bits, v, once, twice)
			}
		}
	}
}

func TestRateReduction(t *testing.T) {
	if got := RateReduction(1); got != 1 {
		t.Errorf("RateReduction(1) = %v, want 1", got)
	}
	if got := RateReduction(0); got != 33 {
		t.Errorf("RateReduction(0) = %v, want 33", got)
	}
	if got := RateReduction(-5); got != 33 {
		t.Errorf("out-of-range input must clamp, got %v", got)
	}
}

func TestBitcrushIdlePassesThrough(t *testing.T) {
	b := NewBitcrush(44100, 1)
	buf := make(pulsar.AudioBuffer, 256)
	for i := range buf {
		v := float32(math.Sin(float64(i) * 0.1))
		buf[i] = [2]float32{v, -v}
	}
	want := buf.Clone()
	b.Process(buf)
	for i := range buf {
		if buf[i] != want[i] {
			t.Fatalf("idle crusher modified frame %d: %v != %v", i, buf[i], want[i])
		}
	}
}

func TestBitcrushMomentaryLifecycle(t *testing.T) {
	b := NewBitcrush(44100, 1)
	b.Trigger(0.05, false)
	buf := make(pulsar.AudioBuffer, 512)
	// 0.05s active plus ramps is well under 0.1s of audio
	for blocks := 0; blocks < 10; blocks++ {
		for i := range buf {
			buf[i] = [2]float32{0.5, 0.5}
		}
		b.Process(buf)
	}
	if b.Active() {
		t.Fatal("momentary crush still active after its duration elapsed")
	}
}

func TestBitcrushSustainedHoldsUntilStop(t *testing.T) {
	b := NewBitcrush(44100, 1)
	b.Trigger(0.01, true)
	buf := make(pulsar.AudioBuffer, 512)
	for blocks := 0; blocks < 20; blocks++ {
		b.Process(buf)
	}
	if !b.Active() {
		t.Fatal("sustained crush released itself without Stop")
	}
	b.Stop()
	for blocks := 0; blocks < 20 && b.Active(); blocks++ {
		b.Process(buf)
	}
	if b.Active() {
		t.Fatal("sustained crush did not release after Stop")
	}
}

func TestBitcrushQuantizesSignal(t *testing.T) {
	b := NewBitcrush(44100, 1)
	p := pulsar.DefaultBitcrushParams()
	p.Bits = 0.2 // 4 bits
	p.SampleRate = 1
	p.Mix = 1
	b.SetParams(p)
	b.Trigger(1, false)

	buf := make(pulsar.AudioBuffer, 4096)
	for i := range buf {
		buf[i] = [2]float32{0.37, 0.37}
	}
	b.Process(buf)
	// past the wet ramp, a constant input must sit on a 4-bit level
	if got := buf[2048][0]; math.Abs(float64(got)-0.375) > 1e-6 {
		t.Fatalf("crushed constant = %v, want 0.375", got)
	}
}
