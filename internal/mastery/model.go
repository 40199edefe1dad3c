package mastery

import (
	"math"
	"time"
)

const (
	// composite score weights
	weightTransfer    = 0.6
	weightExplain     = 0.2
	weightConsistency = 0.1
	weightDecay       = 0.1

	// status thresholds
	developingCeiling = 0.4
	masteryThreshold  = 0.7

	// a concept is mastered only after this many passed tests in distinct
	// generated contexts
	masteryContexts = 2

	DefaultDecayWindowDays = 30

	calibrationHistory = 10
	trendSlopeBand     = 0.01
)

// Signals are the raw inputs to one composite-score computation. Transfer is
// the latest transfer-test score, Explain the latest explain-back quality;
// both in [0,1]. Missing explain evidence falls back to the transfer score.
type Signals struct {
	Transfer   float64
	Explain    float64
	HasExplain bool
}

// Composite blends transfer performance, explanation quality, cross-context
// consistency and freshness into a single [0,1] mastery score.
func Composite(rec *ConceptRecord, sig Signals, now time.Time) float64 {
	explain := sig.Transfer
	if sig.HasExplain {
		explain = sig.Explain
	}
	score := weightTransfer*clamp01(sig.Transfer) +
		weightExplain*clamp01(explain) +
		weightConsistency*consistency(rec) +
		weightDecay*(1.0-timeDecay(rec, now))
	return clamp01(score)
}

// ApplyEvaluation folds one evaluated transfer test into the record. The
// mastery score only moves up from evaluation evidence; decay is the single
// lowering path.
func ApplyEvaluation(rec *ConceptRecord, outcome TestOutcome, sig Signals, now time.Time) {
	rec.Tests = append(rec.Tests, outcome)
	rec.AddContext(outcome.Context)
	validated := now
	rec.LastValidatedAt = &validated

	if candidate := Composite(rec, sig, now); candidate > rec.Score {
		rec.Score = candidate
	}
}

// StatusForScore maps a score and the distinct-context evidence onto the
// target status band. Mastery requires both the score threshold and passes
// in enough distinct contexts; a high score alone stays at testing.
func StatusForScore(score float64, distinctPassedContexts int) Status {
	switch {
	case score >= masteryThreshold && distinctPassedContexts >= masteryContexts:
		return StatusMastered
	case score >= masteryThreshold:
		return StatusTesting
	case score >= developingCeiling:
		return StatusPracticing
	default:
		return StatusIntroduced
	}
}

// MarkMastered promotes the record and stamps the mastery time; the caller
// has already verified the distinct-context rule.
func MarkMastered(rec *ConceptRecord, now time.Time) bool {
	if !rec.Transition(StatusMastered) {
		return false
	}
	at := now
	rec.MasteredAt = &at
	return true
}

// RecordCalibration appends one (confidence, score) observation and returns
// the gap. Positive gap means overconfidence.
func RecordCalibration(rec *ConceptRecord, confidence, score float64) float64 {
	gap := clamp01(confidence) - clamp01(score)
	rec.Confidence = clamp01(confidence)
	rec.CalibrationGap = gap
	rec.ConfidenceHistory = appendCapped(rec.ConfidenceHistory, clamp01(confidence), calibrationHistory)
	rec.CalibrationGaps = appendCapped(rec.CalibrationGaps, gap, calibrationHistory)
	return gap
}

// CalibrationTrend classifies the recent gap history by the sign of its
// least-squares slope: gaps shrinking in magnitude read as improving.
func CalibrationTrend(gaps []float64) string {
	if len(gaps) < 3 {
		return "stable"
	}
	abs := make([]float64, len(gaps))
	for i, g := range gaps {
		abs[i] = math.Abs(g)
	}
	slope := leastSquaresSlope(abs)
	switch {
	case slope < -trendSlopeBand:
		return "improving"
	case slope > trendSlopeBand:
		return "worsening"
	default:
		return "stable"
	}
}

// ApplyDecay re-estimates retention for a stale record and lowers the score
// accordingly. Records never lose their history; a mastered concept whose
// retention has slipped below the mastery threshold moves to decayed and
// becomes eligible for re-testing.
func ApplyDecay(rec *ConceptRecord, retention float64, now time.Time) bool {
	retention = clamp01(retention)
	decayed := rec.Score * retention
	if decayed >= rec.Score {
		return false
	}
	rec.Score = decayed
	if rec.Status == StatusMastered && rec.Score < masteryThreshold {
		rec.Transition(StatusDecayed)
		return true
	}
	return false
}

// DetectMisconceptions registers freshly flagged misconception ids. A repeat
// flag on a resolved or verified misconception reopens it.
func DetectMisconceptions(rec *ConceptRecord, ids []string, confidence float64, now time.Time) {
	if rec.Misconceptions == nil {
		rec.Misconceptions = make(map[string]*MisconceptionState)
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if m, ok := rec.Misconceptions[id]; ok {
			m.Stage = MisconceptionDetected
			m.Confidence = confidence
			continue
		}
		rec.Misconceptions[id] = &MisconceptionState{
			Stage:      MisconceptionDetected,
			Confidence: confidence,
			DetectedAt: now,
		}
	}
}

// MarkAddressed advances detected misconceptions that a remediation round
// explicitly targeted.
func MarkAddressed(rec *ConceptRecord, ids []string) {
	for _, id := range ids {
		if m, ok := rec.Misconceptions[id]; ok && m.Stage == MisconceptionDetected {
			m.Stage = MisconceptionAddressed
		}
	}
}

// ObserveCleanEvaluation advances the lifecycle after an evaluation. Any
// addressed misconception not re-flagged counts as resolved; a resolved one
// surviving a second clean evaluation is verified. Re-flagged ids drop back
// to detected. Returns the ids newly resolved in this pass, for reward
// shaping.
func ObserveCleanEvaluation(rec *ConceptRecord, flagged []string) []string {
	flaggedSet := make(map[string]bool, len(flagged))
	for _, id := range flagged {
		flaggedSet[id] = true
	}
	var resolved []string
	for id, m := range rec.Misconceptions {
		if flaggedSet[id] {
			m.Stage = MisconceptionDetected
			continue
		}
		switch m.Stage {
		case MisconceptionAddressed:
			m.Stage = MisconceptionResolved
			resolved = append(resolved, id)
		case MisconceptionResolved:
			m.Stage = MisconceptionVerified
		}
	}
	return resolved
}

// consistency rewards agreement between transfer-test scores in distinct
// contexts: 1 minus the spread of the most recent score per context. With
// fewer than two contexts there is no cross-context evidence yet.
func consistency(rec *ConceptRecord) float64 {
	latest := make(map[string]float64)
	for _, t := range rec.Tests {
		if t.Context != "" {
			latest[t.Context] = t.Score
		}
	}
	if len(latest) < 2 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range latest {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	return clamp01(1.0 - (hi - lo))
}

// timeDecay normalizes staleness against the decay window: 0 right after
// validation, 1 once a full window has passed.
func timeDecay(rec *ConceptRecord, now time.Time) float64 {
	if rec.LastValidatedAt == nil {
		return 0
	}
	window := rec.DecayWindowDays
	if window <= 0 {
		window = DefaultDecayWindowDays
	}
	days := now.Sub(*rec.LastValidatedAt).Hours() / 24.0
	if days <= 0 {
		return 0
	}
	return clamp01(days / float64(window))
}

func leastSquaresSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func appendCapped(s []float64, v float64, limit int) []float64 {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
