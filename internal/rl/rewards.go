package rl

// Reward shaping constants shared by every layer. Signs matter more than
// magnitudes: mastery dwarfs everything, each step pays a small cost so the
// action learner prefers short paths.
const (
	RewardMastery        = 10.0
	RewardTestPassMult   = 5.0
	RewardTestFail       = -1.0
	RewardMisconception  = -2.0
	RewardResolvedMiscon = 3.0
	RewardStepCost       = -0.5
)

// TurnRewardInputs are the observable outcomes of one orchestrator turn.
type TurnRewardInputs struct {
	Mastered            bool
	TestTaken           bool
	TestScore           float64
	TestPassed          bool
	MisconceptionsFound int
	MisconsResolved     int
	Steps               int
}

// TurnReward folds a turn's outcomes into the scalar the action Q-learner
// trains on.
func TurnReward(in TurnRewardInputs) float64 {
	r := 0.0
	if in.Mastered {
		r += RewardMastery
	}
	if in.TestTaken {
		if in.TestPassed {
			r += in.TestScore * RewardTestPassMult
		} else {
			r += RewardTestFail
		}
	}
	r += float64(in.MisconceptionsFound) * RewardMisconception
	r += float64(in.MisconsResolved) * RewardResolvedMiscon
	r += float64(in.Steps) * RewardStepCost
	return r
}

// EngagementReward scores an interaction profile by the learner's live
// engagement, not by content correctness: a fail streak reads as the profile
// losing the learner even when scores are salvageable.
func EngagementReward(failStreak int, recent []float64) float64 {
	switch EngagementLevel(failStreak, recent) {
	case "high":
		return 1.0
	case "low":
		return 0.0
	default:
		return 0.5
	}
}

// DifficultyReward scores how well a chosen difficulty landed: highest when
// the learner's score sits right at the pass threshold (productive struggle),
// falling off linearly on either side.
func DifficultyReward(score, threshold float64) float64 {
	diff := score - threshold
	if diff < 0 {
		diff = -diff
	}
	r := 1.0 - diff
	if r < 0 {
		r = 0
	}
	return r
}
