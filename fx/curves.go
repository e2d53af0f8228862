package fx

import (
	"math"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

// tapeCurvePoints is the resolution of a generated tape-stop gain curve.
const tapeCurvePoints = 64

// tapeStopCurve generates a monotonically decreasing gain curve from 1 down
// to floor, shaped by the curve type. wobble > 0 superimposes a low-frequency
// sinusoidal perturbation (4-8 Hz) over the whole duration; the perturbation
// is baked into the curve points since the engine applies one value curve
// per parameter.
func tapeStopCurve(curve pulsar.CurveType, wobble, duration float64) []float64 {
	const floor = 1e-3
	points := make([]float64, tapeCurvePoints)
	wobbleHz := 4 + 4*wobble
	for i := range points {
		x := float64(i) / float64(len(points)-1)
		var v float64
		switch curve {
		case pulsar.CurveExponential:
			v = math.Pow(floor, x)
		case pulsar.CurveLogarithmic:
			v = 1 - (1-floor)*math.Log1p(9*x)/math.Log(10)
		case pulsar.CurveSCurve:
			v = 1 - (1-floor)*(3*x*x-2*x*x*x)
		default: // linear
			v = 1 - (1-floor)*x
		}
		if wobble > 0 {
			depth := 0.15 * wobble * v // perturbation shrinks with the gain
			v += depth * math.Sin(2*math.Pi*wobbleHz*x*duration)
			if v < floor {
				v = floor
			}
			if v > 1 {
				v = 1
			}
		}
		points[i] = v
	}
	return points
}

// waveshape applies one of the pre-drive nonlinearities of the bitcrusher.
// drive is normalized 0..1; at 0 every curve is the identity.
func waveshape(x float32, curve pulsar.DriveCurve, drive float64) float32 {
	if drive <= 0 {
		return x
	}
	v := float64(x)
	switch curve {
	case pulsar.DriveHard:
		v *= 1 + 9*drive
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
	case pulsar.DriveFold:
		v *= 1 + 4*drive
		for v > 1 || v < -1 {
			if v > 1 {
				v = 2 - v
			}
			if v < -1 {
				v = -2 - v
			}
		}
	case pulsar.DriveTube: // asymmetric tanh, even harmonics
		g := 1 + 6*drive
		v = math.Tanh(v*g+0.2*drive) - math.Tanh(0.2*drive)
	default: // soft saturation
		g := 1 + 9*drive
		v = math.Tanh(v * g)
	}
	return float32(v)
}
