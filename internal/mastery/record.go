// Package mastery owns the per-(learner, concept) evidence aggregate and the
// scoring model that turns evaluation signals into a mastery score, a status,
// and calibration tracking.
package mastery

import (
	"time"

	"github.com/yungbote/masteryloop-backend/internal/scheduler"
)

type Status string

const (
	StatusUnseen     Status = "unseen"
	StatusIntroduced Status = "introduced"
	StatusPracticing Status = "practicing"
	StatusTesting    Status = "testing"
	StatusMastered   Status = "mastered"
	StatusDecayed    Status = "decayed"
)

// MisconceptionStage tracks the remediation ladder for one misconception id.
type MisconceptionStage string

const (
	MisconceptionDetected  MisconceptionStage = "detected"
	MisconceptionAddressed MisconceptionStage = "addressed"
	MisconceptionResolved  MisconceptionStage = "resolved"
	MisconceptionVerified  MisconceptionStage = "verified"
)

type MisconceptionState struct {
	Stage      MisconceptionStage `json:"stage"`
	Confidence float64            `json:"confidence"`
	DetectedAt time.Time          `json:"detected_at"`
}

// StrategyStat is the running success rate for one teaching strategy on this
// concept.
type StrategyStat struct {
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

func (s StrategyStat) Rate() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Total / float64(s.Count)
}

// TestOutcome is one evaluated transfer test.
type TestOutcome struct {
	TestID         string    `json:"test_id"`
	Context        string    `json:"context"`
	Score          float64   `json:"score"`
	Passed         bool      `json:"passed"`
	Misconceptions []string  `json:"misconceptions,omitempty"`
	At             time.Time `json:"at"`
}

// ConceptRecord is the full per-(learner, concept) aggregate. It is created
// on first exposure, mutated only by the orchestrator turn that owns it, and
// never deleted; time decay is the single path that lowers the score.
type ConceptRecord struct {
	ConceptID string  `json:"concept_id"`
	Status    Status  `json:"status"`
	Score     float64 `json:"mastery_score"`

	Confidence        float64   `json:"confidence"`
	ConfidenceHistory []float64 `json:"confidence_history,omitempty"`
	CalibrationGap    float64   `json:"calibration_gap"`
	CalibrationGaps   []float64 `json:"calibration_gaps,omitempty"`

	Misconceptions map[string]*MisconceptionState `json:"misconceptions,omitempty"`
	StrategyStats  map[string]*StrategyStat       `json:"strategy_stats,omitempty"`

	ContextsUsed []string      `json:"contexts_used,omitempty"`
	Tests        []TestOutcome `json:"tests,omitempty"`

	Review scheduler.ReviewItem `json:"review"`

	DecayWindowDays int  `json:"decay_window_days,omitempty"`
	Incomplete      bool `json:"incomplete,omitempty"`

	IntroducedAt    *time.Time `json:"introduced_at,omitempty"`
	MasteredAt      *time.Time `json:"mastered_at,omitempty"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
}

func NewConceptRecord(conceptID string, now time.Time) *ConceptRecord {
	intro := now
	return &ConceptRecord{
		ConceptID:      conceptID,
		Status:         StatusUnseen,
		Misconceptions: make(map[string]*MisconceptionState),
		StrategyStats:  make(map[string]*StrategyStat),
		IntroducedAt:   &intro,
	}
}

// validTransitions encodes the status state machine; no other jumps are
// allowed.
var validTransitions = map[Status][]Status{
	StatusUnseen:     {StatusIntroduced, StatusTesting},
	StatusIntroduced: {StatusPracticing, StatusTesting, StatusIntroduced},
	StatusPracticing: {StatusTesting, StatusIntroduced},
	StatusTesting:    {StatusMastered, StatusTesting, StatusPracticing, StatusIntroduced},
	StatusMastered:   {StatusDecayed},
	StatusDecayed:    {StatusTesting, StatusIntroduced, StatusMastered},
}

func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the record's status, reporting whether the move was legal.
func (r *ConceptRecord) Transition(to Status) bool {
	if !CanTransition(r.Status, to) {
		return false
	}
	r.Status = to
	return true
}

// HasUsedContext reports whether a generated context was already used for
// teaching or testing this concept.
func (r *ConceptRecord) HasUsedContext(ctx string) bool {
	for _, c := range r.ContextsUsed {
		if c == ctx {
			return true
		}
	}
	return false
}

func (r *ConceptRecord) AddContext(ctx string) {
	if ctx == "" || r.HasUsedContext(ctx) {
		return
	}
	r.ContextsUsed = append(r.ContextsUsed, ctx)
}

// RecordStrategy folds one outcome into the strategy-effectiveness table.
func (r *ConceptRecord) RecordStrategy(strategy string, score float64) {
	if strategy == "" {
		return
	}
	if r.StrategyStats == nil {
		r.StrategyStats = make(map[string]*StrategyStat)
	}
	stat, ok := r.StrategyStats[strategy]
	if !ok {
		stat = &StrategyStat{}
		r.StrategyStats[strategy] = stat
	}
	stat.Total += score
	stat.Count++
}

// DistinctPassedContexts counts passed transfer tests in distinct generated
// contexts; a context repeat does not count toward mastery.
func (r *ConceptRecord) DistinctPassedContexts() int {
	seen := make(map[string]bool)
	for _, t := range r.Tests {
		if t.Passed && t.Context != "" && !seen[t.Context] {
			seen[t.Context] = true
		}
	}
	return len(seen)
}

// RecentScores returns the last n transfer-test scores, oldest first.
func (r *ConceptRecord) RecentScores(n int) []float64 {
	tests := r.Tests
	if len(tests) > n {
		tests = tests[len(tests)-n:]
	}
	out := make([]float64, 0, len(tests))
	for _, t := range tests {
		out = append(out, t.Score)
	}
	return out
}

// ActiveMisconceptions lists ids still in the detected or addressed stages.
func (r *ConceptRecord) ActiveMisconceptions() []string {
	var out []string
	for id, m := range r.Misconceptions {
		if m.Stage == MisconceptionDetected || m.Stage == MisconceptionAddressed {
			out = append(out, id)
		}
	}
	return out
}
