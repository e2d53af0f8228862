package fx

import (
	"math"
	"testing"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

func fillRing(f *Freeze, seconds float64) {
	buf := make(pulsar.AudioBuffer, 512)
	blocks := int(seconds * f.sampleRate / 512)
	phase := 0.0
	for b := 0; b < blocks; b++ {
		for i := range buf {
			v := float32(0.5 * math.Sin(2*math.Pi*phase))
			buf[i] = [2]float32{v, v}
			phase += 220.0 / f.sampleRate
		}
		f.Process(buf)
	}
}

func TestFreezeIdleIsSilentCapture(t *testing.T) {
	f := NewFreeze(44100, 7)
	buf := frameSeq(1, 256)
	want := buf.Clone()
	f.Process(buf)
	for i := range buf {
		if buf[i] != want[i] {
			t.Fatalf("idle freeze modified frame %d", i)
		}
	}
	if f.ring.Filled() != 256 {
		t.Fatalf("ring captured %d frames, want 256", f.ring.Filled())
	}
}

func TestFreezeProducesGrains(t *testing.T) {
	f := NewFreeze(44100, 7)
	fillRing(f, 1.5)
	f.Trigger(false)

	buf := make(pulsar.AudioBuffer, 4096)
	f.Process(buf)
	if !f.Active() {
		t.Fatal("freeze not active after trigger")
	}
	var energy float64
	for i := range buf {
		energy += float64(buf[i][0] * buf[i][0])
	}
	if energy == 0 {
		t.Fatal("frozen output is silent")
	}
}

func TestFreezeDetuneIsDeterministicWithoutSpread(t *testing.T) {
	f := NewFreeze(44100, 7)
	p := pulsar.DefaultFreezeParams()
	p.Pitch = 0.5 // unison base rate
	p.Detune = 1  // +1200 cents
	p.Spread = 0  // no per-grain randomness
	f.SetParams(p)
	fillRing(f, 1.2)
	f.Trigger(true)

	buf := make(pulsar.AudioBuffer, 4096)
	for i := 0; i < 10; i++ {
		buf.Zero()
		f.Process(buf)
	}
	checked := 0
	for i := range f.grains {
		if !f.grains[i].active {
			continue
		}
		checked++
		if got := f.grains[i].rate; math.Abs(got-2) > 1e-9 {
			t.Fatalf("grain rate %v, want exactly 2 (one octave up)", got)
		}
	}
	if checked == 0 {
		t.Fatal("no grains spawned")
	}
}

func TestFreezeMomentaryDrains(t *testing.T) {
	f := NewFreeze(44100, 7)
	p := pulsar.DefaultFreezeParams()
	p.GrainSize = 0 // shortest freeze: 0.5 s spawn window
	f.SetParams(p)
	fillRing(f, 1.2)
	f.Trigger(false)

	buf := make(pulsar.AudioBuffer, 1024)
	// 0.5 s of spawning plus the last grain's length is well under 2 s
	for i := 0; i < 100 && f.Active(); i++ {
		buf.Zero()
		f.Process(buf)
	}
	if f.Active() {
		t.Fatal("momentary freeze never drained")
	}
}

func TestFreezeSustainedHoldsUntilStop(t *testing.T) {
	f := NewFreeze(44100, 7)
	fillRing(f, 1.2)
	f.Trigger(true)

	buf := make(pulsar.AudioBuffer, 1024)
	for i := 0; i < 200; i++ {
		buf.Zero()
		f.Process(buf)
	}
	if !f.Active() {
		t.Fatal("sustained freeze released itself without Stop")
	}
	f.Stop()
	for i := 0; i < 200 && f.Active(); i++ {
		buf.Zero()
		f.Process(buf)
	}
	if f.Active() {
		t.Fatal("sustained freeze did not drain after Stop")
	}
}

func TestFreezeTriggerOnEmptyRingStaysIdle(t *testing.T) {
	f := NewFreeze(44100, 7)
	f.Trigger(false)
	buf := make(pulsar.AudioBuffer, 256)
	f.Process(buf)
	if f.Active() {
		t.Fatal("freeze activated with nothing captured")
	}
}
