package fx

import (
	"math/rand"

	pulsar "github.com/CarlosNMK25/pulsar-v1-sub001"
)

// noiseTableSeconds is the length of a pre-generated noise loop. Two seconds
// is long enough that the loop point is inaudible under a signal.
const noiseTableSeconds = 2

// noiseTable generates a looped colored-noise table once, at construction
// time, so the render domain only ever indexes into it.
func noiseTable(color pulsar.NoiseColor, sampleRate float64, seed int64) []float32 {
	n := int(noiseTableSeconds * sampleRate)
	if n < 1 {
		n = 1
	}
	rng := rand.New(rand.NewSource(seed))
	table := make([]float32, n)
	switch color {
	case pulsar.NoisePink:
		// Paul Kellet's economy pink filter.
		var b0, b1, b2 float64
		for i := range table {
			white := rng.Float64()*2 - 1
			b0 = 0.99765*b0 + white*0.0990460
			b1 = 0.96300*b1 + white*0.2965164
			b2 = 0.57000*b2 + white*1.0526913
			table[i] = float32((b0 + b1 + b2 + white*0.1848) * 0.2)
		}
	case pulsar.NoiseBrown:
		// leaky integrator over white noise
		var acc float64
		for i := range table {
			acc = 0.998*acc + (rng.Float64()*2-1)*0.1
			table[i] = float32(acc * 3)
		}
	default:
		for i := range table {
			table[i] = float32(rng.Float64()*2 - 1)
		}
	}
	return table
}
