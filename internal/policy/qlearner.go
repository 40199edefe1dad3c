package policy

import "math/rand"

// QLearner is a tabular Q-learner over string state keys and a fixed action
// vocabulary. Selection is epsilon-greedy; updates follow the standard
// Bellman form Q(s,a) += alpha * (r + gamma * max_a' Q(s',a') - Q(s,a)).
type QLearner struct {
	Q            map[string]map[string]float64 `json:"q_table"`
	Alpha        float64                       `json:"alpha"`
	Gamma        float64                       `json:"gamma"`
	Epsilon      float64                       `json:"epsilon"`
	TotalUpdates int                           `json:"total_updates"`

	rng *rand.Rand
}

func NewQLearner(alpha, gamma, epsilon float64, rng *rand.Rand) *QLearner {
	return &QLearner{
		Q:       make(map[string]map[string]float64),
		Alpha:   alpha,
		Gamma:   gamma,
		Epsilon: epsilon,
		rng:     rng,
	}
}

func (q *QLearner) SetRNG(rng *rand.Rand) { q.rng = rng }

// Select returns an action for the state: epsilon-exploration over the
// action list, greedy over learned values otherwise, and def for a state
// with no values yet (cold start).
func (q *QLearner) Select(state string, actions []string, def string) string {
	if len(actions) == 0 {
		return def
	}
	if randFloat(q.rng) < q.Epsilon {
		return actions[randIntn(q.rng, len(actions))]
	}
	values := q.Q[state]
	if len(values) == 0 {
		return def
	}
	best := def
	bestVal := 0.0
	first := true
	for _, a := range actions {
		v, ok := values[a]
		if !ok {
			continue
		}
		if first || v > bestVal {
			bestVal = v
			best = a
			first = false
		}
	}
	if first {
		return def
	}
	return best
}

func (q *QLearner) Update(state, action string, reward float64, nextState string) {
	if q.Q == nil {
		q.Q = make(map[string]map[string]float64)
	}
	values, ok := q.Q[state]
	if !ok {
		values = make(map[string]float64)
		q.Q[state] = values
	}
	current := values[action]

	maxNext := 0.0
	if next := q.Q[nextState]; len(next) > 0 {
		first := true
		for _, v := range next {
			if first || v > maxNext {
				maxNext = v
				first = false
			}
		}
	}

	values[action] = current + q.Alpha*(reward+q.Gamma*maxNext-current)
	q.TotalUpdates++
}

func (q *QLearner) Value(state, action string) float64 {
	return q.Q[state][action]
}

func (q *QLearner) StatesExplored() int { return len(q.Q) }
