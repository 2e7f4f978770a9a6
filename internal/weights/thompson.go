package weights

import (
	"math"
	"math/rand"
)

// SampleThompson draws from Beta(alpha, beta) for (category, key). Callers
// choosing among competing tools/models take the highest draw: uncertain
// options occasionally win (exploration), proven options usually win
// (exploitation). Read-side overrides on tool_preference short-circuit the
// draw.
func (s *Store) SampleThompson(category Category, key string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category == CategoryToolPreference {
		if ov, ok := s.overrides[key]; ok && ov.turns > 0 {
			if ov.activate {
				return 1
			}
			return 0
		}
	}

	w := s.peek(category, key)
	return sampleBeta(s.rng, w.Alpha, w.Beta)
}

// sampleBeta draws from Beta(a, b) via two Gamma draws.
func sampleBeta(rng *rand.Rand, a, b float64) float64 {
	x := sampleGamma(rng, a)
	y := sampleGamma(rng, b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using Marsaglia-Tsang. Pseudo-counts
// are Laplace-smoothed so shape >= 1 always holds, but the shape < 1 boost is
// kept for safety.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
