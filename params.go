// Package pulsar contains the domain types shared by the control and render
// domains of the glitch engine: effect parameter sets, patch structs, the
// performance file model and audio buffer plumbing.
//
// Parameter sets are immutable-until-written value objects. The control
// domain mutates them only by whole-value replacement; the render domain
// reads the last published value without further synchronization. All
// numeric fields are normalized and mapped to physical units inside the
// processors. Out-of-range values are clamped, never rejected: a live
// control must not error mid-performance.
package pulsar

type (
	// CurveType selects the shape of a generated automation or waveshaping
	// curve.
	CurveType string

	// DriveCurve selects the pre-drive waveshaping nonlinearity of the
	// bitcrusher.
	DriveCurve string

	// NoiseColor selects the spectrum of injected noise.
	NoiseColor string

	// JitterMode selects how the bitcrush delay-ring read offset is
	// modulated.
	JitterMode string

	// NoteDivision is a musical subdivision resolved against the current
	// BPM, e.g. "1/16".
	NoteDivision string
)

const (
	CurveLinear      CurveType = "linear"
	CurveExponential CurveType = "exponential"
	CurveLogarithmic CurveType = "logarithmic"
	CurveSCurve      CurveType = "s-curve"
)

const (
	DriveSoft DriveCurve = "soft"
	DriveHard DriveCurve = "hard"
	DriveFold DriveCurve = "fold"
	DriveTube DriveCurve = "tube"
)

const (
	NoiseWhite NoiseColor = "white"
	NoisePink  NoiseColor = "pink"
	NoiseBrown NoiseColor = "brown"
)

const (
	JitterRandomWalk JitterMode = "walk"
	JitterSine       JitterMode = "sine"
	JitterTape       JitterMode = "tape"
)

const (
	Div4  NoteDivision = "1/4"
	Div8  NoteDivision = "1/8"
	Div16 NoteDivision = "1/16"
	Div32 NoteDivision = "1/32"
	Div64 NoteDivision = "1/64"
)

// Steps returns how many sixteenth-note steps the division spans. Unknown
// divisions fall back to a sixteenth.
func (d NoteDivision) Steps() float64 {
	switch d {
	case Div4:
		return 4
	case Div8:
		return 2
	case Div16:
		return 1
	case Div32:
		return 0.5
	case Div64:
		return 0.25
	}
	return 1
}

// Seconds resolves the division to seconds at the given tempo.
func (d NoteDivision) Seconds(bpm float64) float64 {
	return 60 / clampF(bpm, MinBPM, MaxBPM) / 4 * d.Steps()
}

const (
	MinBPM = 20
	MaxBPM = 300
)

type (
	StutterParams struct {
		Division    NoteDivision `yaml:"division"`
		Decay       float64      `yaml:"decay"`
		Mix         float64      `yaml:"mix"`
		RepeatCount int          `yaml:"repeatcount"`
		Probability float64      `yaml:"probability"`
	}

	BitcrushParams struct {
		Bits        float64    `yaml:"bits"`       // 0..1 -> 1..16 bits
		SampleRate  float64    `yaml:"samplerate"` // 0..1; hold factor 1+32*(1-v)
		Mix         float64    `yaml:"mix"`
		Drive       float64    `yaml:"drive"`
		Curve       DriveCurve `yaml:"curve"`
		Noise       float64    `yaml:"noise"`
		NoiseColor  NoiseColor `yaml:"noisecolor"`
		PostFilter  float64    `yaml:"postfilter"` // 0..1 lowpass cutoff; 1 = open
		Jitter      float64    `yaml:"jitter"`
		JitterMode  JitterMode `yaml:"jittermode"`
		Probability float64    `yaml:"probability"`
	}

	TapeStopParams struct {
		Speed       float64   `yaml:"speed"`
		Duration    float64   `yaml:"duration"`
		Mix         float64   `yaml:"mix"`
		Curve       CurveType `yaml:"curve"`
		Wobble      float64   `yaml:"wobble"`
		Probability float64   `yaml:"probability"`
	}

	FreezeParams struct {
		GrainSize   float64 `yaml:"grainsize"` // 0..1 -> 0.02..0.2 s
		Pitch       float64 `yaml:"pitch"`     // 0..1; 0.5 = unison
		Spread      float64 `yaml:"spread"`
		Mix         float64 `yaml:"mix"`
		Position    float64 `yaml:"position"`
		Overlap     float64 `yaml:"overlap"` // 0..1 -> 1..8 overlapping grains
		Density     float64 `yaml:"density"` // 0..1 -> 5..60 Hz
		Jitter      float64 `yaml:"jitter"`
		Attack      float64 `yaml:"attack"`
		Detune      float64 `yaml:"detune"` // 0..1 -> -1200..+1200 cents
		Scatter     float64 `yaml:"scatter"`
		Reverse     bool    `yaml:"reverse"`
		Probability float64 `yaml:"probability"`
	}

	ReverseParams struct {
		Duration    float64 `yaml:"duration"` // 0..1 -> 0.1..0.5 s fragment
		Mix         float64 `yaml:"mix"`
		Position    float64 `yaml:"position"`
		Crossfade   float64 `yaml:"crossfade"` // 0..1 -> 0.005..0.1 s
		Speed       float64 `yaml:"speed"`     // 0..1 -> 0.5..2.0 playback rate
		Feedback    float64 `yaml:"feedback"`
		LoopCount   int     `yaml:"loopcount"` // 1..4
		Probability float64 `yaml:"probability"`
	}

	ChaosParams struct {
		Density   float64 `yaml:"density"`
		Intensity float64 `yaml:"intensity"`
	}
)

func DefaultStutterParams() StutterParams {
	return StutterParams{Division: Div16, Decay: 0.3, Mix: 1, RepeatCount: 4, Probability: 1}
}

func DefaultBitcrushParams() BitcrushParams {
	return BitcrushParams{Bits: 0.2, SampleRate: 0.5, Mix: 1, Drive: 0, Curve: DriveSoft,
		Noise: 0, NoiseColor: NoiseWhite, PostFilter: 1, Jitter: 0, JitterMode: JitterRandomWalk, Probability: 1}
}

func DefaultTapeStopParams() TapeStopParams {
	return TapeStopParams{Speed: 0.5, Duration: 0.5, Mix: 1, Curve: CurveExponential, Wobble: 0, Probability: 1}
}

func DefaultFreezeParams() FreezeParams {
	return FreezeParams{GrainSize: 0.5, Pitch: 0.5, Spread: 0.3, Mix: 1, Position: 0.5,
		Overlap: 0.4, Density: 0.5, Jitter: 0.3, Attack: 0.3, Detune: 0.5, Scatter: 0.2, Probability: 1}
}

func DefaultReverseParams() ReverseParams {
	return ReverseParams{Duration: 0.5, Mix: 1, Position: 0, Crossfade: 0.2, Speed: 1.0 / 3.0,
		Feedback: 0, LoopCount: 1, Probability: 1}
}

func DefaultChaosParams() ChaosParams {
	return ChaosParams{Density: 0.5, Intensity: 0.5}
}

// Clamp returns a copy of the params with every field forced into its legal
// range.
func (p StutterParams) Clamp() StutterParams {
	if p.Division == "" {
		p.Division = Div16
	}
	p.Decay = clamp01(p.Decay)
	p.Mix = clamp01(p.Mix)
	p.RepeatCount = clampI(p.RepeatCount, 1, 16)
	p.Probability = clamp01(p.Probability)
	return p
}

func (p BitcrushParams) Clamp() BitcrushParams {
	p.Bits = clamp01(p.Bits)
	p.SampleRate = clamp01(p.SampleRate)
	p.Mix = clamp01(p.Mix)
	p.Drive = clamp01(p.Drive)
	if p.Curve == "" {
		p.Curve = DriveSoft
	}
	p.Noise = clamp01(p.Noise)
	if p.NoiseColor == "" {
		p.NoiseColor = NoiseWhite
	}
	p.PostFilter = clamp01(p.PostFilter)
	p.Jitter = clamp01(p.Jitter)
	if p.JitterMode == "" {
		p.JitterMode = JitterRandomWalk
	}
	p.Probability = clamp01(p.Probability)
	return p
}

func (p TapeStopParams) Clamp() TapeStopParams {
	p.Speed = clamp01(p.Speed)
	p.Duration = clamp01(p.Duration)
	p.Mix = clamp01(p.Mix)
	if p.Curve == "" {
		p.Curve = CurveExponential
	}
	p.Wobble = clamp01(p.Wobble)
	p.Probability = clamp01(p.Probability)
	return p
}

func (p FreezeParams) Clamp() FreezeParams {
	p.GrainSize = clamp01(p.GrainSize)
	p.Pitch = clamp01(p.Pitch)
	p.Spread = clamp01(p.Spread)
	p.Mix = clamp01(p.Mix)
	p.Position = clamp01(p.Position)
	p.Overlap = clamp01(p.Overlap)
	p.Density = clamp01(p.Density)
	p.Jitter = clamp01(p.Jitter)
	p.Attack = clamp01(p.Attack)
	p.Detune = clamp01(p.Detune)
	p.Scatter = clamp01(p.Scatter)
	p.Probability = clamp01(p.Probability)
	return p
}

func (p ReverseParams) Clamp() ReverseParams {
	p.Duration = clamp01(p.Duration)
	p.Mix = clamp01(p.Mix)
	p.Position = clamp01(p.Position)
	p.Crossfade = clamp01(p.Crossfade)
	p.Speed = clamp01(p.Speed)
	p.Feedback = clamp01(p.Feedback)
	p.LoopCount = clampI(p.LoopCount, 1, 4)
	p.Probability = clamp01(p.Probability)
	return p
}

func (p ChaosParams) Clamp() ChaosParams {
	p.Density = clamp01(p.Density)
	p.Intensity = clamp01(p.Intensity)
	return p
}

type (
	// Patch structs list only the fields that changed; nil fields leave the
	// current value untouched. Apply copies the set fields onto a params
	// value field by field; the caller clamps and republishes the whole
	// value afterwards.

	StutterPatch struct {
		Division    *NoteDivision `yaml:"division,omitempty"`
		Decay       *float64      `yaml:"decay,omitempty"`
		Mix         *float64      `yaml:"mix,omitempty"`
		RepeatCount *int          `yaml:"repeatcount,omitempty"`
		Probability *float64      `yaml:"probability,omitempty"`
	}

	BitcrushPatch struct {
		Bits        *float64    `yaml:"bits,omitempty"`
		SampleRate  *float64    `yaml:"samplerate,omitempty"`
		Mix         *float64    `yaml:"mix,omitempty"`
		Drive       *float64    `yaml:"drive,omitempty"`
		Curve       *DriveCurve `yaml:"curve,omitempty"`
		Noise       *float64    `yaml:"noise,omitempty"`
		NoiseColor  *NoiseColor `yaml:"noisecolor,omitempty"`
		PostFilter  *float64    `yaml:"postfilter,omitempty"`
		Jitter      *float64    `yaml:"jitter,omitempty"`
		JitterMode  *JitterMode `yaml:"jittermode,omitempty"`
		Probability *float64    `yaml:"probability,omitempty"`
	}

	TapeStopPatch struct {
		Speed       *float64   `yaml:"speed,omitempty"`
		Duration    *float64   `yaml:"duration,omitempty"`
		Mix         *float64   `yaml:"mix,omitempty"`
		Curve       *CurveType `yaml:"curve,omitempty"`
		Wobble      *float64   `yaml:"wobble,omitempty"`
		Probability *float64   `yaml:"probability,omitempty"`
	}

	FreezePatch struct {
		GrainSize   *float64 `yaml:"grainsize,omitempty"`
		Pitch       *float64 `yaml:"pitch,omitempty"`
		Spread      *float64 `yaml:"spread,omitempty"`
		Mix         *float64 `yaml:"mix,omitempty"`
		Position    *float64 `yaml:"position,omitempty"`
		Overlap     *float64 `yaml:"overlap,omitempty"`
		Density     *float64 `yaml:"density,omitempty"`
		Jitter      *float64 `yaml:"jitter,omitempty"`
		Attack      *float64 `yaml:"attack,omitempty"`
		Detune      *float64 `yaml:"detune,omitempty"`
		Scatter     *float64 `yaml:"scatter,omitempty"`
		Reverse     *bool    `yaml:"reverse,omitempty"`
		Probability *float64 `yaml:"probability,omitempty"`
	}

	ReversePatch struct {
		Duration    *float64 `yaml:"duration,omitempty"`
		Mix         *float64 `yaml:"mix,omitempty"`
		Position    *float64 `yaml:"position,omitempty"`
		Crossfade   *float64 `yaml:"crossfade,omitempty"`
		Speed       *float64 `yaml:"speed,omitempty"`
		Feedback    *float64 `yaml:"feedback,omitempty"`
		LoopCount   *int     `yaml:"loopcount,omitempty"`
		Probability *float64 `yaml:"probability,omitempty"`
	}

	ChaosPatch struct {
		Density   *float64 `yaml:"density,omitempty"`
		Intensity *float64 `yaml:"intensity,omitempty"`
	}
)

func (patch StutterPatch) Apply(p StutterParams) StutterParams {
	setV(&p.Division, patch.Division)
	setV(&p.Decay, patch.Decay)
	setV(&p.Mix, patch.Mix)
	setV(&p.RepeatCount, patch.RepeatCount)
	setV(&p.Probability, patch.Probability)
	return p.Clamp()
}

func (patch BitcrushPatch) Apply(p BitcrushParams) BitcrushParams {
	setV(&p.Bits, patch.Bits)
	setV(&p.SampleRate, patch.SampleRate)
	setV(&p.Mix, patch.Mix)
	setV(&p.Drive, patch.Drive)
	setV(&p.Curve, patch.Curve)
	setV(&p.Noise, patch.Noise)
	setV(&p.NoiseColor, patch.NoiseColor)
	setV(&p.PostFilter, patch.PostFilter)
	setV(&p.Jitter, patch.Jitter)
	setV(&p.JitterMode, patch.JitterMode)
	setV(&p.Probability, patch.Probability)
	return p.Clamp()
}

func (patch TapeStopPatch) Apply(p TapeStopParams) TapeStopParams {
	setV(&p.Speed, patch.Speed)
	setV(&p.Duration, patch.Duration)
	setV(&p.Mix, patch.Mix)
	setV(&p.Curve, patch.Curve)
	setV(&p.Wobble, patch.Wobble)
	setV(&p.Probability, patch.Probability)
	return p.Clamp()
}

func (patch FreezePatch) Apply(p FreezeParams) FreezeParams {
	setV(&p.GrainSize, patch.GrainSize)
	setV(&p.Pitch, patch.Pitch)
	setV(&p.Spread, patch.Spread)
	setV(&p.Mix, patch.Mix)
	setV(&p.Position, patch.Position)
	setV(&p.Overlap, patch.Overlap)
	setV(&p.Density, patch.Density)
	setV(&p.Jitter, patch.Jitter)
	setV(&p.Attack, patch.Attack)
	setV(&p.Detune, patch.Detune)
	setV(&p.Scatter, patch.Scatter)
	setV(&p.Reverse, patch.Reverse)
	setV(&p.Probability, patch.Probability)
	return p.Clamp()
}

func (patch ReversePatch) Apply(p ReverseParams) ReverseParams {
	setV(&p.Duration, patch.Duration)
	setV(&p.Mix, patch.Mix)
	setV(&p.Position, patch.Position)
	setV(&p.Crossfade, patch.Crossfade)
	setV(&p.Speed, patch.Speed)
	setV(&p.Feedback, patch.Feedback)
	setV(&p.LoopCount, patch.LoopCount)
	setV(&p.Probability, patch.Probability)
	return p.Clamp()
}

func (patch ChaosPatch) Apply(p ChaosParams) ChaosParams {
	setV(&p.Density, patch.Density)
	setV(&p.Intensity, patch.Intensity)
	return p.Clamp()
}

func setV[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func clamp01(v float64) float64 { return clampF(v, 0, 1) }

func clampF(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampI(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Clamp forces an integer into [min, max]. Exported for the packages that
// clamp physical values the same way the parameter sets do.
func Clamp(v, min, max int) int { return clampI(v, min, max) }

// Clamp01 forces v into the unit range.
func Clamp01(v float64) float64 { return clamp01(v) }

// ClampF is the float companion of Clamp.
func ClampF(v, min, max float64) float64 { return clampF(v, min, max) }
