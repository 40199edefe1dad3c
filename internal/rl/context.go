package rl

import "strings"

// Bucketing keeps the contextual tables small enough to learn from a handful
// of observations. Every continuous signal is discretized here and nowhere
// else, so the key shapes stay stable across layers.

// DifficultyContext carries the signals the difficulty-side bandits condition
// on for one (learner, concept) decision.
type DifficultyContext struct {
	// Velocity is concepts mastered per expected unit; 1.0 is the catalog pace.
	Velocity float64
	// CalibrationGap is the latest confidence-minus-score gap.
	CalibrationGap float64
	// ActiveMisconceptions counts ids still in detected or addressed stages.
	ActiveMisconceptions int
}

func (c DifficultyContext) Key() string {
	return strings.Join([]string{
		velocityBucket(c.Velocity),
		calibrationBucket(c.CalibrationGap),
		misconceptionBucket(c.ActiveMisconceptions),
	}, "|")
}

// ActionState is the discretized state the action Q-learner runs on.
type ActionState struct {
	Status       string
	TestCount    int
	FailStreak   int
	RecentScores []float64
	Engagement   string
}

func (s ActionState) Key() string {
	eng := s.Engagement
	if eng == "" {
		eng = "medium"
	}
	return strings.Join([]string{
		s.Status,
		testCountBucket(s.TestCount),
		failStreakBucket(s.FailStreak),
		scoreTrendBucket(s.RecentScores),
		eng,
	}, "|")
}

// ReviewContext is what the interval-factor bandit conditions on.
type ReviewContext struct {
	SuccessRate    float64
	EasinessFactor float64
	MisconDensity  float64
}

func (c ReviewContext) Key() string {
	return strings.Join([]string{
		rateBucket(c.SuccessRate),
		easinessBucket(c.EasinessFactor),
		rateBucket(c.MisconDensity),
	}, "|")
}

// EngagementContext summarizes the current session for profile selection.
type EngagementContext struct {
	SessionMinutes float64
	MeanScore      float64
	TurnsPerHour   float64
}

func (c EngagementContext) Key() string {
	return strings.Join([]string{
		durationBucket(c.SessionMinutes),
		rateBucket(c.MeanScore),
		paceBucket(c.TurnsPerHour),
	}, "|")
}

// EngagementLevel collapses live session signals into the coarse engagement
// component of the Q-state: a growing fail streak reads as disengagement,
// a clean streak of strong scores as high engagement.
func EngagementLevel(failStreak int, recent []float64) string {
	if failStreak >= 2 {
		return "low"
	}
	if failStreak == 0 && len(recent) > 0 {
		sum := 0.0
		for _, s := range recent {
			sum += s
		}
		if sum/float64(len(recent)) >= 0.7 {
			return "high"
		}
	}
	return "medium"
}

func velocityBucket(v float64) string {
	switch {
	case v < 0.7:
		return "slow"
	case v > 1.3:
		return "fast"
	default:
		return "normal"
	}
}

func calibrationBucket(gap float64) string {
	switch {
	case gap > 0.15:
		return "over"
	case gap < -0.15:
		return "under"
	default:
		return "calibrated"
	}
}

func misconceptionBucket(n int) string {
	switch {
	case n == 0:
		return "none"
	case n <= 2:
		return "some"
	default:
		return "many"
	}
}

func testCountBucket(n int) string {
	switch {
	case n == 0:
		return "0"
	case n <= 2:
		return "1-2"
	default:
		return "3+"
	}
}

func failStreakBucket(n int) string {
	switch {
	case n <= 0:
		return "0"
	case n == 1:
		return "1"
	default:
		return "2+"
	}
}

// scoreTrendBucket compares the ends of the last three scores.
func scoreTrendBucket(scores []float64) string {
	if len(scores) < 2 {
		return "flat"
	}
	if len(scores) > 3 {
		scores = scores[len(scores)-3:]
	}
	delta := scores[len(scores)-1] - scores[0]
	switch {
	case delta > 0.1:
		return "rising"
	case delta < -0.1:
		return "falling"
	default:
		return "flat"
	}
}

func rateBucket(r float64) string {
	switch {
	case r < 0.4:
		return "low"
	case r < 0.75:
		return "mid"
	default:
		return "high"
	}
}

func easinessBucket(ef float64) string {
	switch {
	case ef < 1.8:
		return "hard"
	case ef < 2.4:
		return "mid"
	default:
		return "easy"
	}
}

func durationBucket(minutes float64) string {
	switch {
	case minutes < 10:
		return "short"
	case minutes < 30:
		return "mid"
	default:
		return "long"
	}
}

func paceBucket(turnsPerHour float64) string {
	switch {
	case turnsPerHour < 10:
		return "slow"
	case turnsPerHour < 30:
		return "steady"
	default:
		return "rapid"
	}
}
