package policy

// Hyper bundles the exploration and learning-rate constants one RL layer
// runs with. The mapping from learner experience to constants is a fixed
// lookup, not learned: fresh learners explore hard, experienced learners
// converge fast.
type Hyper struct {
	Alpha   float64
	Gamma   float64
	Epsilon float64
}

func HyperForExperience(conceptsMastered int) Hyper {
	switch {
	case conceptsMastered < 5:
		return Hyper{Alpha: 0.2, Gamma: 0.9, Epsilon: 0.3}
	case conceptsMastered < 20:
		return Hyper{Alpha: 0.1, Gamma: 0.9, Epsilon: 0.15}
	default:
		return Hyper{Alpha: 0.05, Gamma: 0.9, Epsilon: 0.05}
	}
}
