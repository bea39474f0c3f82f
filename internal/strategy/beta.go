package strategy

import (
	"math"
	"math/rand/v2"
)

// seedMix is the second PCG word; any fixed odd constant works.
const seedMix = 0x9e3779b97f4a7c15

// RandFactory builds the generator used for one proposal. A nil seed asks for
// a non-reproducible generator.
type RandFactory func(seed *int64) *rand.Rand

// PCGFactory seeds a PCG generator from the proposal seed.
func PCGFactory(seed *int64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(*seed), seedMix))
}

// #region beta-sampler
// BetaSampler draws Beta variates as X/(X+Y) with X~Gamma(a), Y~Gamma(b).
// Gamma draws use Marsaglia-Tsang; shapes below one use the u^(1/a) boost.
type BetaSampler struct {
	rng *rand.Rand
}

// NewBetaSampler wraps rng. The sampler is not safe for concurrent use.
func NewBetaSampler(rng *rand.Rand) *BetaSampler {
	return &BetaSampler{rng: rng}
}

// Beta returns one draw from Beta(a, b). Both shapes must be positive.
func (s *BetaSampler) Beta(a, b float64) float64 {
	x := s.Gamma(a)
	y := s.Gamma(b)
	if x+y == 0 {
		return 0
	}
	return x / (x + y)
}

// Gamma returns one draw from Gamma(shape, 1).
func (s *BetaSampler) Gamma(shape float64) float64 {
	if shape < 1 {
		u := s.rng.Float64()
		return s.Gamma(shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := s.rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := s.rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// #endregion beta-sampler
