package policy

import "math/rand"

// ArmStat is the running reward aggregate for one (context, arm) pair.
type ArmStat struct {
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

func (s ArmStat) Mean() float64 {
	if s.Count <= 0 {
		return 0
	}
	return s.Total / float64(s.Count)
}

// ContextualBandit keeps an epsilon-greedy running-mean table keyed by a
// discretized context string. Epsilon anneals from 0.2 down to 0.05 as
// updates accumulate, so early learners explore and settled ones exploit.
type ContextualBandit struct {
	Table        map[string]map[int]*ArmStat `json:"table"`
	TotalUpdates int                         `json:"total_updates"`

	rng *rand.Rand
}

func NewContextualBandit(rng *rand.Rand) *ContextualBandit {
	return &ContextualBandit{
		Table: make(map[string]map[int]*ArmStat),
		rng:   rng,
	}
}

func (b *ContextualBandit) SetRNG(rng *rand.Rand) { b.rng = rng }

func (b *ContextualBandit) Epsilon() float64 {
	eps := 0.2 - (float64(b.TotalUpdates)/200.0)*0.15
	if eps < 0.05 {
		eps = 0.05
	}
	return eps
}

// Select picks an arm in [0, numArms): with probability epsilon a uniform
// random arm, otherwise the arm with the best running mean for this context.
// An unseen context yields def.
func (b *ContextualBandit) Select(contextKey string, numArms int, def int) int {
	if numArms <= 0 {
		return def
	}
	if randFloat(b.rng) < b.Epsilon() {
		return randIntn(b.rng, numArms)
	}
	arms := b.Table[contextKey]
	if len(arms) == 0 {
		return def
	}
	best := def
	bestAvg := -999.0
	for arm, stat := range arms {
		if avg := stat.Mean(); avg > bestAvg {
			bestAvg = avg
			best = arm
		}
	}
	return best
}

// Update applies an incremental mean update for the (context, arm) pair.
// Storing total and count gives the same 1/n step as the streaming form.
func (b *ContextualBandit) Update(contextKey string, arm int, reward float64) {
	if b.Table == nil {
		b.Table = make(map[string]map[int]*ArmStat)
	}
	arms, ok := b.Table[contextKey]
	if !ok {
		arms = make(map[int]*ArmStat)
		b.Table[contextKey] = arms
	}
	stat, ok := arms[arm]
	if !ok {
		stat = &ArmStat{}
		arms[arm] = stat
	}
	stat.Total += reward
	stat.Count++
	b.TotalUpdates++
}

func (b *ContextualBandit) ContextsSeen() int { return len(b.Table) }

func randIntn(rng *rand.Rand, n int) int {
	if rng != nil {
		return rng.Intn(n)
	}
	return rand.Intn(n)
}
