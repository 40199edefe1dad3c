package mastery

import (
	"math"
	"testing"
	"time"
)

func testNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestOnePerfectScoreDoesNotMaster(t *testing.T) {
	now := testNow()
	rec := NewConceptRecord("recursion", now)
	rec.Transition(StatusIntroduced)
	rec.Transition(StatusTesting)

	outcome := TestOutcome{TestID: "t1", Context: "ctx_trees", Score: 1.0, Passed: true, At: now}
	ApplyEvaluation(rec, outcome, Signals{Transfer: 1.0}, now)

	status := StatusForScore(rec.Score, rec.DistinctPassedContexts())
	if status == StatusMastered {
		t.Fatalf("one perfect score in a single context must not master (score=%v, contexts=%d)",
			rec.Score, rec.DistinctPassedContexts())
	}
	if rec.DistinctPassedContexts() != 1 {
		t.Fatalf("distinct passed contexts: got %d want 1", rec.DistinctPassedContexts())
	}
}

func TestSecondDistinctContextUnlocksMastery(t *testing.T) {
	now := testNow()
	rec := NewConceptRecord("recursion", now)
	rec.Transition(StatusIntroduced)
	rec.Transition(StatusTesting)

	ApplyEvaluation(rec, TestOutcome{TestID: "t1", Context: "ctx_trees", Score: 0.9, Passed: true, At: now},
		Signals{Transfer: 0.9}, now)
	ApplyEvaluation(rec, TestOutcome{TestID: "t2", Context: "ctx_filesystems", Score: 0.85, Passed: true, At: now},
		Signals{Transfer: 0.85}, now)

	if got := rec.DistinctPassedContexts(); got != 2 {
		t.Fatalf("distinct contexts: got %d want 2", got)
	}
	status := StatusForScore(rec.Score, rec.DistinctPassedContexts())
	if status != StatusMastered {
		t.Fatalf("two distinct-context passes at score %v should master, got %s", rec.Score, status)
	}
	if !MarkMastered(rec, now) {
		t.Fatalf("testing -> mastered should be a legal transition")
	}
	if rec.MasteredAt == nil {
		t.Fatalf("mastered timestamp not set")
	}
}

func TestRepeatedContextDoesNotCountTwice(t *testing.T) {
	now := testNow()
	rec := NewConceptRecord("recursion", now)
	ApplyEvaluation(rec, TestOutcome{TestID: "t1", Context: "ctx_trees", Score: 0.9, Passed: true, At: now},
		Signals{Transfer: 0.9}, now)
	ApplyEvaluation(rec, TestOutcome{TestID: "t2", Context: "ctx_trees", Score: 0.95, Passed: true, At: now},
		Signals{Transfer: 0.95}, now)
	if got := rec.DistinctPassedContexts(); got != 1 {
		t.Fatalf("same context passed twice: got %d distinct, want 1", got)
	}
}

func TestEvaluationNeverLowersScore(t *testing.T) {
	now := testNow()
	rec := NewConceptRecord("recursion", now)
	ApplyEvaluation(rec, TestOutcome{TestID: "t1", Context: "a", Score: 0.9, Passed: true, At: now},
		Signals{Transfer: 0.9}, now)
	high := rec.Score

	ApplyEvaluation(rec, TestOutcome{TestID: "t2", Context: "b", Score: 0.1, Passed: false, At: now},
		Signals{Transfer: 0.1}, now)
	if rec.Score < high {
		t.Fatalf("a bad test lowered the score: %v -> %v", high, rec.Score)
	}
}

func TestOverconfidenceGap(t *testing.T) {
	rec := NewConceptRecord("recursion", testNow())
	gap := RecordCalibration(rec, 0.8, 0.3)
	if math.Abs(gap-0.5) > 1e-9 {
		t.Fatalf("calibration gap: got %v want 0.5", gap)
	}
	// the poor score keeps the status band below mastered regardless of
	// the stated confidence
	if s := StatusForScore(0.3, 0); s != StatusIntroduced {
		t.Fatalf("score 0.3 should stay in the lowest band, got %s", s)
	}
}

func TestCalibrationTrend(t *testing.T) {
	improving := []float64{0.5, 0.4, 0.3, 0.2, 0.1}
	if got := CalibrationTrend(improving); got != "improving" {
		t.Fatalf("shrinking gaps: got %q want improving", got)
	}
	worsening := []float64{0.05, 0.1, 0.2, 0.3, 0.4}
	if got := CalibrationTrend(worsening); got != "worsening" {
		t.Fatalf("growing gaps: got %q want worsening", got)
	}
	// underconfidence gaps are negative but their magnitude is what trends
	improvingUnder := []float64{-0.5, -0.4, -0.3, -0.2}
	if got := CalibrationTrend(improvingUnder); got != "improving" {
		t.Fatalf("shrinking underconfidence: got %q want improving", got)
	}
	if got := CalibrationTrend([]float64{0.2, 0.2}); got != "stable" {
		t.Fatalf("short history: got %q want stable", got)
	}
}

func TestDecayIsOnlyLoweringPath(t *testing.T) {
	now := testNow()
	rec := NewConceptRecord("recursion", now)
	rec.Transition(StatusIntroduced)
	rec.Transition(StatusTesting)
	ApplyEvaluation(rec, TestOutcome{TestID: "t1", Context: "a", Score: 0.9, Passed: true, At: now},
		Signals{Transfer: 0.9}, now)
	ApplyEvaluation(rec, TestOutcome{TestID: "t2", Context: "b", Score: 0.9, Passed: true, At: now},
		Signals{Transfer: 0.9}, now)
	MarkMastered(rec, now)
	before := rec.Score

	demoted := ApplyDecay(rec, 0.5, now.AddDate(0, 2, 0))
	if rec.Score >= before {
		t.Fatalf("decay did not lower score: %v -> %v", before, rec.Score)
	}
	if !demoted || rec.Status != StatusDecayed {
		t.Fatalf("mastered record below threshold should decay, got status %s", rec.Status)
	}
	if len(rec.Tests) == 0 || rec.Misconceptions == nil {
		t.Fatalf("decay must not erase history")
	}
}

func TestDecayNoOpAtFullRetention(t *testing.T) {
	now := testNow()
	rec := NewConceptRecord("recursion", now)
	rec.Score = 0.8
	rec.Status = StatusMastered
	if demoted := ApplyDecay(rec, 1.0, now); demoted {
		t.Fatalf("full retention should not demote")
	}
	if rec.Score != 0.8 {
		t.Fatalf("full retention changed score: %v", rec.Score)
	}
}

func TestMisconceptionLifecycle(t *testing.T) {
	now := testNow()
	rec := NewConceptRecord("recursion", now)

	DetectMisconceptions(rec, []string{"off_by_one"}, 0.9, now)
	if rec.Misconceptions["off_by_one"].Stage != MisconceptionDetected {
		t.Fatalf("fresh flag should be detected")
	}

	MarkAddressed(rec, []string{"off_by_one"})
	if rec.Misconceptions["off_by_one"].Stage != MisconceptionAddressed {
		t.Fatalf("targeted remediation should mark addressed")
	}

	resolved := ObserveCleanEvaluation(rec, nil)
	if len(resolved) != 1 || resolved[0] != "off_by_one" {
		t.Fatalf("clean evaluation should resolve, got %v", resolved)
	}
	if rec.Misconceptions["off_by_one"].Stage != MisconceptionResolved {
		t.Fatalf("stage after first clean pass: %s", rec.Misconceptions["off_by_one"].Stage)
	}

	if resolved = ObserveCleanEvaluation(rec, nil); len(resolved) != 0 {
		t.Fatalf("second clean pass should verify, not re-resolve: %v", resolved)
	}
	if rec.Misconceptions["off_by_one"].Stage != MisconceptionVerified {
		t.Fatalf("stage after second clean pass: %s", rec.Misconceptions["off_by_one"].Stage)
	}

	// a re-flag reopens the ladder
	DetectMisconceptions(rec, []string{"off_by_one"}, 0.7, now)
	if rec.Misconceptions["off_by_one"].Stage != MisconceptionDetected {
		t.Fatalf("re-flag should reopen, got %s", rec.Misconceptions["off_by_one"].Stage)
	}
	if got := rec.ActiveMisconceptions(); len(got) != 1 {
		t.Fatalf("active misconceptions: got %v", got)
	}
}

func TestReflaggedMisconceptionRegresses(t *testing.T) {
	now := testNow()
	rec := NewConceptRecord("recursion", now)
	DetectMisconceptions(rec, []string{"base_case"}, 0.8, now)
	MarkAddressed(rec, []string{"base_case"})

	ObserveCleanEvaluation(rec, []string{"base_case"})
	if rec.Misconceptions["base_case"].Stage != MisconceptionDetected {
		t.Fatalf("re-flagged misconception should drop to detected, got %s",
			rec.Misconceptions["base_case"].Stage)
	}
}

func TestStatusTransitionGuards(t *testing.T) {
	if CanTransition(StatusUnseen, StatusMastered) {
		t.Fatalf("unseen -> mastered must be illegal")
	}
	if !CanTransition(StatusDecayed, StatusTesting) {
		t.Fatalf("decayed -> testing (retest) must be legal")
	}
	if !CanTransition(StatusTesting, StatusIntroduced) {
		t.Fatalf("testing -> introduced (reteach) must be legal")
	}
	if !CanTransition(StatusTesting, StatusPracticing) {
		t.Fatalf("testing -> practicing (failed test demotion) must be legal")
	}
	rec := NewConceptRecord("x", testNow())
	if rec.Transition(StatusPracticing) {
		t.Fatalf("unseen -> practicing should be rejected")
	}
	if rec.Status != StatusUnseen {
		t.Fatalf("failed transition mutated status: %s", rec.Status)
	}
}

func TestStrategyStats(t *testing.T) {
	rec := NewConceptRecord("x", testNow())
	rec.RecordStrategy("socratic", 1.0)
	rec.RecordStrategy("socratic", 0.5)
	rec.RecordStrategy("analogy", 0.2)
	if got := rec.StrategyStats["socratic"].Rate(); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("socratic rate: got %v want 0.75", got)
	}
	if got := rec.StrategyStats["analogy"].Rate(); math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("analogy rate: got %v want 0.2", got)
	}
}

func TestConsistencyNeedsTwoContexts(t *testing.T) {
	now := testNow()
	rec := NewConceptRecord("x", now)
	rec.Tests = []TestOutcome{{Context: "a", Score: 0.9, Passed: true}}
	if got := consistency(rec); got != 0 {
		t.Fatalf("single context consistency: got %v want 0", got)
	}
	rec.Tests = append(rec.Tests, TestOutcome{Context: "b", Score: 0.7, Passed: true})
	if got := consistency(rec); math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("two-context spread 0.2: got %v want 0.8", got)
	}
}
