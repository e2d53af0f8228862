package pulsar_test

import (
	"math"
	"testing"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

const errorThreshold = 1e-9

func TestNoteDivisionSeconds(t *testing.T) {
	tests := []struct {
		div  pulsar.NoteDivision
		bpm  float64
		want float64
	}{
		{pulsar.Div16, 120, 0.125},
		{pulsar.Div4, 120, 0.5},
		{pulsar.Div8, 120, 0.25},
		{pulsar.Div32, 120, 0.0625},
		{pulsar.Div64, 120, 0.03125},
		{pulsar.Div16, 60, 0.25},
		{pulsar.NoteDivision("1/7"), 120, 0.125}, // unknown falls back to 1/16
		{pulsar.Div16, 1000, 0.05},               // bpm clamped to 300
		{pulsar.Div16, 5, 0.75},                  // bpm clamped to 20
	}
	for _, test := range tests {
		got := test.div.Seconds(test.bpm)
		if math.Abs(got-test.want) > errorThreshold {
			t.Errorf("%v at %v bpm: got %v, want %v", test.div, test.bpm, got, test.want)
		}
	}
}

func TestStutterParamsClamp(t *testing.T) {
	p := pulsar.StutterParams{Decay: -1, Mix: 2, RepeatCount: 99, Probability: -0.5}
	c := p.Clamp()
	if c.Division != pulsar.Div16 {
		t.Errorf("empty division should default to 1/16, got %v", c.Division)
	}
	if c.Decay != 0 || c.Mix != 1 || c.RepeatCount != 16 || c.Probability != 0 {
		t.Errorf("clamp did not force fields into range: %+v", c)
	}
	if (pulsar.StutterParams{RepeatCount: 0}).Clamp().RepeatCount != 1 {
		t.Errorf("repeat count zero should clamp to 1")
	}
}

func TestReverseParamsClamp(t *testing.T) {
	c := pulsar.ReverseParams{Speed: 1.5, LoopCount: 9, Feedback: -2}.Clamp()
	if c.Speed != 1 || c.LoopCount != 4 || c.Feedback != 0 {
		t.Errorf("clamp did not force fields into range: %+v", c)
	}
	if pulsar.DefaultReverseParams().Clamp() != pulsar.DefaultReverseParams() {
		t.Errorf("defaults should be a clamp fixed point")
	}
}

func TestBitcrushParamsClampFillsEnums(t *testing.T) {
	c := pulsar.BitcrushParams{}.Clamp()
	if c.Curve != pulsar.DriveSoft || c.NoiseColor != pulsar.NoiseWhite || c.JitterMode != pulsar.JitterRandomWalk {
		t.Errorf("empty enums should get defaults: %+v", c)
	}
}

func TestPatchAppliesOnlySetFields(t *testing.T) {
	base := pulsar.DefaultBitcrushParams()
	bits := 0.9
	got := pulsar.BitcrushPatch{Bits: &bits}.Apply(base)
	if got.Bits != 0.9 {
		t.Errorf("patched field not applied: got %v", got.Bits)
	}
	got.Bits = base.Bits
	if got != base {
		t.Errorf("unpatched fields changed: got %+v, want %+v", got, base)
	}
}

func TestPatchClampsAppliedValues(t *testing.T) {
	mix := 3.0
	got := pulsar.StutterPatch{Mix: &mix}.Apply(pulsar.DefaultStutterParams())
	if got.Mix != 1 {
		t.Errorf("patched value should be clamped: got %v", got.Mix)
	}
}

func TestVoiceSpecClamp(t *testing.T) {
	v := pulsar.VoiceSpec{Wave: "wobbulator", Freq: 5, Gain: 2}.Clamp()
	if v.Wave != pulsar.WaveSine {
		t.Errorf("unknown wave should fall back to sine, got %q", v.Wave)
	}
	if v.Freq != 20 || v.Gain != 1 || v.Decay != 0.2 {
		t.Errorf("clamp did not force fields into range: %+v", v)
	}
}
