// Package orchestrator drives the tutoring loop as a deterministic state
// machine: it owns phase transitions, the per-turn step budget, collaborator
// dispatch and the all-or-nothing persistence of a turn. Policy decisions
// come from the rl engine; prose comes from the content collaborators.
package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/masteryloop-backend/internal/content"
	"github.com/yungbote/masteryloop-backend/internal/kgraph"
	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/mastery"
	"github.com/yungbote/masteryloop-backend/internal/rl"
	"github.com/yungbote/masteryloop-backend/internal/scheduler"
)

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseDiagnostic    Phase = "diagnostic"
	PhaseSelectConcept Phase = "select_concept"
	PhaseTeach         Phase = "teach"
	PhasePractice      Phase = "practice"
	PhaseTransferTest  Phase = "transfer_test"
	PhaseComplete      Phase = "complete"
)

var (
	// ErrSessionConflict: the learner already has an active session.
	ErrSessionConflict = errors.New("orchestrator: session already active")
	// ErrInvalidTransition: the request does not fit the session's phase.
	ErrInvalidTransition = errors.New("orchestrator: invalid phase transition")
	// ErrContentUnavailable: the generator failed even after the fallback
	// attempt; the turn was abandoned without persisting.
	ErrContentUnavailable = errors.New("orchestrator: content unavailable")
	// ErrNoSession: no active session for the learner.
	ErrNoSession = errors.New("orchestrator: no active session")
)

const IncompleteStepBudget = "step_budget_exceeded"

// Config bounds one turn of the loop.
type Config struct {
	// MaxTurnSteps caps phase transitions plus collaborator dispatches in
	// a single turn. Exhaustion ends the turn with an incomplete result,
	// never an error.
	MaxTurnSteps int
	// CollaboratorTimeout bounds each generator or evaluator call.
	CollaboratorTimeout time.Duration
	// MaxConsecutiveFailures of collaborators before the session is
	// abandoned outright.
	MaxConsecutiveFailures int
	// DiagnosticProbeCap bounds the optional session-start probe sequence.
	DiagnosticProbeCap int
}

func DefaultConfig() Config {
	return Config{
		MaxTurnSteps:           5,
		CollaboratorTimeout:    5 * time.Second,
		MaxConsecutiveFailures: 3,
		DiagnosticProbeCap:     10,
	}
}

// PendingTask is the material shown to the learner that the session is
// blocked on.
type PendingTask struct {
	Kind       content.Kind `json:"kind"`
	Context    string       `json:"context"`
	Content    string       `json:"content"`
	Prompt     string       `json:"prompt,omitempty"`
	Hints      []string     `json:"hints,omitempty"`
	Retest     bool         `json:"retest,omitempty"`
	Diagnostic bool         `json:"diagnostic,omitempty"`
}

// Session is the live state machine for one learner's sitting.
type Session struct {
	ID        uuid.UUID `json:"id"`
	LearnerID uuid.UUID `json:"learner_id"`
	Phase     Phase     `json:"phase"`
	ConceptID string    `json:"concept_id,omitempty"`

	StrategyArm   int     `json:"strategy_arm"`
	Strategy      string  `json:"strategy,omitempty"`
	Difficulty    int     `json:"difficulty"`
	ThresholdArm  int     `json:"threshold_arm"`
	Threshold     float64 `json:"threshold"`
	EngagementArm int     `json:"engagement_arm"`
	Engagement    string  `json:"engagement,omitempty"`

	Pending    *PendingTask `json:"pending,omitempty"`
	Retest     bool         `json:"retest,omitempty"`
	FailStreak int          `json:"fail_streak"`
	TurnCount  int          `json:"turn_count"`

	// RetestArm is the retest-multiplier arm behind the current reduced
	// threshold; ReviewDue marks a retest triggered by the review queue, so
	// the scheduler profile that set the due date gets credited on outcome.
	// EngagementCtx is the context key the engagement profile was chosen
	// under.
	RetestArm     int    `json:"retest_arm,omitempty"`
	ReviewDue     bool   `json:"review_due,omitempty"`
	EngagementCtx string `json:"engagement_ctx,omitempty"`

	// ProbesRemaining counts down the diagnostic probe budget; zero means
	// the session is past (or never entered) the diagnostic phase.
	// ProbedConcepts lists what was already probed so a failed probe is
	// not re-issued.
	ProbesRemaining int      `json:"probes_remaining,omitempty"`
	ProbedConcepts  []string `json:"probed_concepts,omitempty"`

	// LastActionState/LastAction remember the Q-learner's most recent
	// decision so the next evaluation can credit it.
	LastActionState string `json:"last_action_state,omitempty"`
	LastAction      string `json:"last_action,omitempty"`
	// ReteachTargets holds the misconception ids the current teach round
	// was generated against; a clean follow-up marks them addressed.
	ReteachTargets []string `json:"reteach_targets,omitempty"`

	CollabFailures int       `json:"collab_failures"`
	StartedAt      time.Time `json:"started_at"`
}

func (s *Session) Active() bool {
	return s != nil && s.Phase != PhaseIdle && s.Phase != PhaseComplete
}

// LearnerSnapshot is everything one turn reads and writes: the concept
// records, the policy blob and the session. The store hands out fresh copies
// so an abandoned turn leaves no trace.
type LearnerSnapshot struct {
	LearnerID uuid.UUID
	Records   map[string]*mastery.ConceptRecord
	Policy    *rl.Engine
	Session   *Session
}

func (s *LearnerSnapshot) MasteredSet() map[string]bool {
	out := make(map[string]bool)
	for id, rec := range s.Records {
		if rec.Status == mastery.StatusMastered {
			out[id] = true
		}
	}
	return out
}

func (s *LearnerSnapshot) record(conceptID string, now time.Time) *mastery.ConceptRecord {
	rec, ok := s.Records[conceptID]
	if !ok {
		rec = mastery.NewConceptRecord(conceptID, now)
		s.Records[conceptID] = rec
	}
	return rec
}

// Event is one observable moment of a turn, both published live and stored
// with the turn.
type Event struct {
	Type      string         `json:"type"`
	SessionID uuid.UUID      `json:"session_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	At        time.Time      `json:"at"`
}

// Store persists snapshots. SaveTurn must be atomic: either the whole
// mutated snapshot plus events land, or nothing does.
type Store interface {
	LoadSnapshot(ctx context.Context, learnerID uuid.UUID) (*LearnerSnapshot, error)
	SaveTurn(ctx context.Context, snap *LearnerSnapshot, events []Event) error
}

// EventSink receives live events; a nil sink is allowed.
type EventSink interface {
	Publish(learnerID uuid.UUID, ev Event)
}

// TurnResult is what a turn hands back to the transport layer.
type TurnResult struct {
	SessionID  uuid.UUID           `json:"session_id"`
	Phase      Phase               `json:"phase"`
	ConceptID  string              `json:"concept_id,omitempty"`
	Task       *PendingTask        `json:"task,omitempty"`
	Lesson     *content.Generated  `json:"lesson,omitempty"`
	Evaluation *content.Evaluation `json:"evaluation,omitempty"`

	Mastered         bool                  `json:"mastered,omitempty"`
	Incomplete       bool                  `json:"incomplete,omitempty"`
	IncompleteReason string                `json:"incomplete_reason,omitempty"`
	StepsUsed        int                   `json:"steps_used"`
	DueReviews       []scheduler.DueReview `json:"due_reviews,omitempty"`
}

// Orchestrator wires the collaborators, the catalog and the store into the
// turn driver. now and rng are injectable for tests.
type Orchestrator struct {
	cfg   Config
	graph *kgraph.Graph
	gen   content.Generator
	eval  content.Evaluator
	store Store
	sink  EventSink
	log   *logger.Logger

	now func() time.Time
	rng *rand.Rand
}

func New(cfg Config, graph *kgraph.Graph, gen content.Generator, eval content.Evaluator, store Store, sink EventSink, log *logger.Logger) *Orchestrator {
	if cfg.MaxTurnSteps <= 0 {
		cfg.MaxTurnSteps = DefaultConfig().MaxTurnSteps
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = DefaultConfig().CollaboratorTimeout
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultConfig().MaxConsecutiveFailures
	}
	return &Orchestrator{
		cfg:   cfg,
		graph: graph,
		gen:   gen,
		eval:  eval,
		store: store,
		sink:  sink,
		log:   log.With("component", "Orchestrator"),
		now:   func() time.Time { return time.Now().UTC() },
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetClock and SetRNG pin time and randomness for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }
func (o *Orchestrator) SetRNG(rng *rand.Rand)         { o.rng = rng }
