// Package policy holds the pure statistical learners behind the tutoring
// decisions: a Thompson-Sampling Bernoulli bandit, an epsilon-greedy
// contextual bandit, and a tabular Q-learner. Nothing in here knows about
// learners or concepts; callers map domain signals onto arms and buckets.
package policy

import (
	"math"
	"math/rand"
)

// BetaArm carries the Beta distribution parameters for one arm.
// Alpha counts successes + 1, Beta counts failures + 1.
type BetaArm struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

func (a BetaArm) Expected() float64 {
	total := a.Alpha + a.Beta
	if total <= 0 {
		return 0
	}
	return a.Alpha / total
}

// ThompsonBandit selects among a fixed set of discrete arms by sampling
// each arm's posterior and taking the max. Ties break toward the lowest
// arm index so tests stay deterministic under a seeded RNG.
type ThompsonBandit struct {
	Arms []BetaArm `json:"arms"`

	rng *rand.Rand
}

func NewThompsonBandit(numArms int, rng *rand.Rand) *ThompsonBandit {
	arms := make([]BetaArm, numArms)
	for i := range arms {
		arms[i] = BetaArm{Alpha: 1.0, Beta: 1.0}
	}
	return &ThompsonBandit{Arms: arms, rng: rng}
}

func (b *ThompsonBandit) SetRNG(rng *rand.Rand) { b.rng = rng }

// Select draws one Beta sample per arm and returns the arm with the
// strictly greatest sample. Arms present in exclude are skipped unless
// excluding would leave nothing to pick.
func (b *ThompsonBandit) Select(exclude map[int]bool) int {
	if len(b.Arms) == 0 {
		return 0
	}
	if len(exclude) >= len(b.Arms) {
		exclude = nil
	}
	best := -1
	bestSample := -1.0
	for i, arm := range b.Arms {
		if exclude[i] {
			continue
		}
		sample := betaSample(b.rng, arm.Alpha, arm.Beta)
		if sample > bestSample {
			bestSample = sample
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// Best returns the arm with the highest expected value, no exploration.
func (b *ThompsonBandit) Best() int {
	best := 0
	bestEV := -1.0
	for i, arm := range b.Arms {
		if ev := arm.Expected(); ev > bestEV {
			bestEV = ev
			best = i
		}
	}
	return best
}

// Update credits the arm with fractional evidence: alpha grows by score,
// beta by 1-score. A pass/fail caller passes 1 or 0.
func (b *ThompsonBandit) Update(arm int, score float64) {
	if arm < 0 || arm >= len(b.Arms) {
		return
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	b.Arms[arm].Alpha += score
	b.Arms[arm].Beta += 1.0 - score
}

// ExclusionSet returns arms whose expected value sits more than one
// standard deviation below the mean, considering only arms with at least
// two observations beyond the prior. The threshold never drops below 0.15.
func (b *ThompsonBandit) ExclusionSet() map[int]bool {
	type ev struct {
		arm int
		val float64
	}
	var evs []ev
	for i, arm := range b.Arms {
		if arm.Alpha+arm.Beta > 3 {
			evs = append(evs, ev{arm: i, val: arm.Expected()})
		}
	}
	if len(evs) < 2 {
		return nil
	}
	mean := 0.0
	for _, e := range evs {
		mean += e.val
	}
	mean /= float64(len(evs))
	variance := 0.0
	for _, e := range evs {
		variance += (e.val - mean) * (e.val - mean)
	}
	std := math.Sqrt(variance / float64(len(evs)))
	threshold := math.Max(0.15, mean-std)
	out := make(map[int]bool)
	for _, e := range evs {
		if e.val < threshold {
			out[e.arm] = true
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// betaSample draws from Beta(a, b) via two Gamma draws.
func betaSample(rng *rand.Rand, a, b float64) float64 {
	x := gammaSample(rng, a)
	y := gammaSample(rng, b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// gammaSample draws from Gamma(shape, 1) using Marsaglia-Tsang, with the
// standard boost for shape < 1.
func gammaSample(rng *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := randFloat(rng)
		return gammaSample(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = randNorm(rng)
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := randFloat(rng)
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

func randFloat(rng *rand.Rand) float64 {
	if rng != nil {
		return rng.Float64()
	}
	return rand.Float64()
}

func randNorm(rng *rand.Rand) float64 {
	if rng != nil {
		return rng.NormFloat64()
	}
	return rand.NormFloat64()
}
