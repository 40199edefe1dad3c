package rl

import (
	"math"
	"math/rand"
	"testing"
)

func TestEngineRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	e := NewEngine(rng)

	ctx := DifficultyContext{Velocity: 1.0, CalibrationGap: 0.3, ActiveMisconceptions: 1}
	e.UpdateStrategy(2, 0.8)
	e.UpdateDifficulty(ctx, 2, 0.9)
	e.UpdateAction(ActionState{Status: "testing", TestCount: 1}, "test", 4.5,
		ActionState{Status: "mastered", TestCount: 2})
	e.NoteMastered()

	blob, err := e.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := Unmarshal(blob, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.ConceptsMastered != 1 {
		t.Fatalf("mastered count: got %d want 1", decoded.ConceptsMastered)
	}
	if got := decoded.Strategy.Arms[2].Alpha; math.Abs(got-1.8) > 1e-9 {
		t.Fatalf("strategy alpha: got %v want 1.8", got)
	}
	stat := decoded.Difficulty.Table[ctx.Key()][1]
	if stat == nil || stat.Count != 1 || stat.Total != 0.9 {
		t.Fatalf("difficulty stat did not survive round trip: %+v", stat)
	}
	key := ActionState{Status: "testing", TestCount: 1}.Key()
	if decoded.Action.Q[key]["test"] == 0 {
		t.Fatalf("q value did not survive round trip")
	}
}

func TestUnmarshalEmptyBlobYieldsFreshEngine(t *testing.T) {
	e, err := Unmarshal(nil, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unmarshal nil: %v", err)
	}
	if len(e.Strategy.Arms) != len(Strategies) {
		t.Fatalf("strategy arms: got %d want %d", len(e.Strategy.Arms), len(Strategies))
	}
	if e.SchedProfile == nil || e.SchedProfile.ContextsSeen() != 0 {
		t.Fatalf("scheduler layer not fresh: %+v", e.SchedProfile)
	}
	if e.Engagement == nil || e.Engagement.ContextsSeen() != 0 {
		t.Fatalf("engagement layer not fresh: %+v", e.Engagement)
	}
	// fresh learner tier
	if e.Action.Alpha != 0.2 || e.Action.Epsilon != 0.3 {
		t.Fatalf("fresh hyper tier: alpha=%v epsilon=%v", e.Action.Alpha, e.Action.Epsilon)
	}
}

func TestHyperTierShiftsWithMastery(t *testing.T) {
	e := NewEngine(rand.New(rand.NewSource(1)))
	for i := 0; i < 5; i++ {
		e.NoteMastered()
	}
	if e.Action.Alpha != 0.1 || e.Action.Epsilon != 0.15 {
		t.Fatalf("tier after 5 mastered: alpha=%v epsilon=%v", e.Action.Alpha, e.Action.Epsilon)
	}
	for i := 0; i < 15; i++ {
		e.NoteMastered()
	}
	if e.Action.Alpha != 0.05 || e.Action.Epsilon != 0.05 {
		t.Fatalf("tier after 20 mastered: alpha=%v epsilon=%v", e.Action.Alpha, e.Action.Epsilon)
	}
}

func TestColdStartActionFollowsStatus(t *testing.T) {
	e := NewEngine(rand.New(rand.NewSource(1)))
	e.Action.Epsilon = 0 // no exploration, expose the defaults

	cases := map[string]string{
		"unseen":     "teach",
		"practicing": "practice",
		"testing":    "test",
		"decayed":    "test",
		"mastered":   "skip_ahead",
	}
	for status, want := range cases {
		got := e.SelectAction(ActionState{Status: status})
		if got != want {
			t.Fatalf("status %q: got %q want %q", status, got, want)
		}
	}
}

func TestStrategyReselectionAfterFailures(t *testing.T) {
	e := NewEngine(rand.New(rand.NewSource(42)))

	// strategy 0 fails hard while the others do fine
	for i := 0; i < 12; i++ {
		e.UpdateStrategy(0, 0.02)
		e.UpdateStrategy(1, 0.8)
		e.UpdateStrategy(2, 0.7)
		e.UpdateStrategy(3, 0.75)
		e.UpdateStrategy(4, 0.72)
	}
	excluded := e.Strategy.ExclusionSet()
	if !excluded[0] {
		t.Fatalf("persistently failing strategy not excluded: %v", excluded)
	}
	for i := 0; i < 50; i++ {
		arm, _ := e.SelectStrategy()
		if arm == 0 {
			t.Fatalf("excluded strategy was selected")
		}
	}
	names := e.ExcludedStrategies()
	found := false
	for _, n := range names {
		if n == Strategies[0] {
			found = true
		}
	}
	if !found {
		t.Fatalf("excluded names missing %q: %v", Strategies[0], names)
	}
}

func TestSelectStrategyExcludingHonorsCallerSet(t *testing.T) {
	e := NewEngine(rand.New(rand.NewSource(9)))

	extra := map[int]bool{0: true, 1: true}
	for i := 0; i < 50; i++ {
		arm, name := e.SelectStrategyExcluding(extra)
		if arm == 0 || arm == 1 {
			t.Fatalf("caller-excluded arm selected: %d %q", arm, name)
		}
	}

	// excluding everything would leave no arm; the caller set is dropped
	all := make(map[int]bool, len(Strategies))
	for arm := range Strategies {
		all[arm] = true
	}
	arm, name := e.SelectStrategyExcluding(all)
	if arm < 0 || arm >= len(Strategies) || name == "" {
		t.Fatalf("selection with full exclusion set invalid: %d %q", arm, name)
	}
}

func TestEngagementLevelBuckets(t *testing.T) {
	cases := []struct {
		failStreak int
		recent     []float64
		want       string
	}{
		{2, []float64{0.9, 0.9}, "low"},
		{3, nil, "low"},
		{0, []float64{0.8, 0.9}, "high"},
		{0, []float64{0.5, 0.6}, "medium"},
		{0, nil, "medium"},
		{1, []float64{0.9, 0.9}, "medium"},
	}
	for _, c := range cases {
		if got := EngagementLevel(c.failStreak, c.recent); got != c.want {
			t.Fatalf("streak=%d recent=%v: got %q want %q", c.failStreak, c.recent, got, c.want)
		}
	}
}

func TestDifficultyContextKeyBuckets(t *testing.T) {
	cases := []struct {
		ctx  DifficultyContext
		want string
	}{
		{DifficultyContext{Velocity: 0.5, CalibrationGap: 0.3, ActiveMisconceptions: 0}, "slow|over|none"},
		{DifficultyContext{Velocity: 1.0, CalibrationGap: -0.3, ActiveMisconceptions: 2}, "normal|under|some"},
		{DifficultyContext{Velocity: 2.0, CalibrationGap: 0.0, ActiveMisconceptions: 5}, "fast|calibrated|many"},
	}
	for _, c := range cases {
		if got := c.ctx.Key(); got != c.want {
			t.Fatalf("key for %+v: got %q want %q", c.ctx, got, c.want)
		}
	}
}

func TestActionStateKey(t *testing.T) {
	s := ActionState{
		Status:       "testing",
		TestCount:    2,
		FailStreak:   1,
		RecentScores: []float64{0.4, 0.5, 0.8},
		Engagement:   "high",
	}
	if got := s.Key(); got != "testing|1-2|1|rising|high" {
		t.Fatalf("action key: got %q", got)
	}
	flat := ActionState{Status: "unseen"}
	if got := flat.Key(); got != "unseen|0|0|flat|medium" {
		t.Fatalf("default action key: got %q", got)
	}
}

func TestTurnReward(t *testing.T) {
	r := TurnReward(TurnRewardInputs{
		Mastered:        true,
		TestTaken:       true,
		TestScore:       0.8,
		TestPassed:      true,
		MisconsResolved: 1,
		Steps:           4,
	})
	want := 10.0 + 0.8*5.0 + 3.0 - 2.0
	if math.Abs(r-want) > 1e-9 {
		t.Fatalf("mastery turn reward: got %v want %v", r, want)
	}

	r = TurnReward(TurnRewardInputs{
		TestTaken:           true,
		TestScore:           0.3,
		TestPassed:          false,
		MisconceptionsFound: 2,
		Steps:               3,
	})
	want = -1.0 - 4.0 - 1.5
	if math.Abs(r-want) > 1e-9 {
		t.Fatalf("failed turn reward: got %v want %v", r, want)
	}
}

func TestEngagementAndSchedulerLayersAreContextual(t *testing.T) {
	e := NewEngine(rand.New(rand.NewSource(5)))

	short := EngagementContext{SessionMinutes: 5, MeanScore: 0.3, TurnsPerHour: 5}
	long := EngagementContext{SessionMinutes: 45, MeanScore: 0.9, TurnsPerHour: 20}
	if short.Key() == long.Key() {
		t.Fatalf("distinct session signals collapsed to one key %q", short.Key())
	}
	e.UpdateEngagementKey(short.Key(), 0, 1.0)
	e.UpdateEngagementKey(long.Key(), 2, 1.0)
	if got := e.Engagement.ContextsSeen(); got != 2 {
		t.Fatalf("engagement contexts: got %d want 2", got)
	}

	rctx := ReviewContext{SuccessRate: 0.9, EasinessFactor: 2.5, MisconDensity: 0.1}
	arm, prof := e.SelectSchedulerProfile(rctx)
	if prof.Name == "" {
		t.Fatalf("scheduler profile missing for arm %d", arm)
	}
	e.UpdateSchedulerProfileKey(rctx.Key(), arm, 1.0)
	if got := e.SchedProfile.ContextsSeen(); got != 1 {
		t.Fatalf("scheduler contexts: got %d want 1", got)
	}
	stat := e.SchedProfile.Table[rctx.Key()][arm]
	if stat == nil || stat.Count != 1 || stat.Total != 1.0 {
		t.Fatalf("scheduler credit not booked under its context: %+v", stat)
	}
}

func TestEngagementRewardTracksLevel(t *testing.T) {
	if got := EngagementReward(0, []float64{0.9, 0.8, 0.85}); got != 1.0 {
		t.Fatalf("engaged learner: got %v want 1", got)
	}
	if got := EngagementReward(3, nil); got != 0.0 {
		t.Fatalf("fail streak: got %v want 0", got)
	}
	if got := EngagementReward(1, []float64{0.5}); got != 0.5 {
		t.Fatalf("middle ground: got %v want 0.5", got)
	}
}

func TestDifficultyRewardPeaksAtThreshold(t *testing.T) {
	if got := DifficultyReward(0.7, 0.7); got != 1.0 {
		t.Fatalf("at-threshold reward: got %v want 1", got)
	}
	if DifficultyReward(0.95, 0.7) >= DifficultyReward(0.75, 0.7) {
		t.Fatalf("too-easy outcome should score below near-threshold outcome")
	}
	if DifficultyReward(0.2, 0.7) >= DifficultyReward(0.6, 0.7) {
		t.Fatalf("too-hard outcome should score below near-threshold outcome")
	}
}

func TestSelectionsStayInCatalogs(t *testing.T) {
	e := NewEngine(rand.New(rand.NewSource(3)))
	ctx := DifficultyContext{Velocity: 1.0}
	for i := 0; i < 100; i++ {
		if d := e.SelectDifficulty(ctx); d < 1 || d > NumDifficulties {
			t.Fatalf("difficulty out of range: %d", d)
		}
		if _, th := e.SelectThreshold(ctx); th < 0.55 || th > 0.80 {
			t.Fatalf("threshold out of catalog: %v", th)
		}
		if _, m := e.SelectRetestMultiplier(ctx); m < 0.45 || m > 0.70 {
			t.Fatalf("retest multiplier out of catalog: %v", m)
		}
		if _, f := e.SelectIntervalFactor(ReviewContext{}); f < 0.5 || f > 2.0 {
			t.Fatalf("interval factor out of clamp: %v", f)
		}
		if arm, p := e.SelectEngagement(EngagementContext{}); arm < 0 || arm >= len(EngagementProfiles) || p.Name == "" {
			t.Fatalf("engagement selection invalid: %d %+v", arm, p)
		}
		if arm, p := e.SelectSchedulerProfile(ReviewContext{}); arm < 0 || arm >= 5 || p.Name == "" {
			t.Fatalf("scheduler selection invalid: %d %+v", arm, p)
		}
	}
}
