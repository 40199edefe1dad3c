// Package rl composes the policy primitives into the five decision layers of
// the tutoring loop. One Engine instance belongs to exactly one learner and
// serializes to a single JSON blob; learners never share tables.
package rl

import (
	"encoding/json"
	"math/rand"

	"github.com/yungbote/masteryloop-backend/internal/policy"
	"github.com/yungbote/masteryloop-backend/internal/scheduler"
)

// Strategies is the teaching-strategy catalog the StrategyBandit arms map to.
var Strategies = []string{
	"socratic",
	"worked_examples",
	"analogy",
	"debugging_exercise",
	"explain_back",
}

// Actions is the macro-action vocabulary of the action Q-learner.
var Actions = []string{
	"teach",
	"practice",
	"test",
	"reteach",
	"skip_ahead",
	"ask_learner",
}

// Difficulty arms are indices into 1..3; thresholds and retest multipliers
// are discrete catalogs the contextual bandits choose over.
var (
	MasteryThresholds = []float64{0.55, 0.60, 0.65, 0.70, 0.75, 0.80}
	RetestMultipliers = []float64{0.45, 0.50, 0.57, 0.65, 0.70}
	IntervalFactors   = []float64{0.5, 0.75, 1.0, 1.5, 2.0}
)

const (
	NumDifficulties = 3

	defaultDifficulty     = 1 // arm 0
	defaultThresholdArm   = 3 // 0.70
	defaultRetestMultArm  = 3 // 0.65
	defaultIntervalFactor = 2 // 1.0
	defaultEngagementArm  = 1 // coach
	defaultSchedulerArm   = 0 // standard SM-2
)

// EngagementProfile tunes the interaction texture around the content.
type EngagementProfile struct {
	Name              string  `json:"name"`
	Tone              string  `json:"tone"`
	HintFrequency     string  `json:"hint_frequency"`
	CheckInEverySteps int     `json:"check_in_every_steps"`
	PaceBias          float64 `json:"pace_bias"`
}

// EngagementProfiles is the catalog the EngagementBandit selects over.
var EngagementProfiles = []EngagementProfile{
	{Name: "encouraging", Tone: "warm", HintFrequency: "eager", CheckInEverySteps: 2, PaceBias: 0.9},
	{Name: "coach", Tone: "direct", HintFrequency: "on_request", CheckInEverySteps: 3, PaceBias: 1.0},
	{Name: "minimal", Tone: "neutral", HintFrequency: "rare", CheckInEverySteps: 5, PaceBias: 1.1},
	{Name: "probing", Tone: "curious", HintFrequency: "questions_only", CheckInEverySteps: 2, PaceBias: 0.95},
	{Name: "structured", Tone: "formal", HintFrequency: "scheduled", CheckInEverySteps: 4, PaceBias: 1.0},
}

// coldStartActions seed the Q-learner before any state has values.
var coldStartActions = map[string]string{
	"unseen":     "teach",
	"introduced": "practice",
	"practicing": "practice",
	"testing":    "test",
	"decayed":    "test",
	"mastered":   "skip_ahead",
}

// Engine is the per-learner policy state: five named layers over shared
// primitives. The exported fields are the serialized surface; RNGs are
// injected after construction or decode.
type Engine struct {
	Strategy       *policy.ThompsonBandit   `json:"strategy"`
	Difficulty     *policy.ContextualBandit `json:"difficulty"`
	Threshold      *policy.ContextualBandit `json:"threshold"`
	RetestMult     *policy.ContextualBandit `json:"retest_multiplier"`
	Action         *policy.QLearner         `json:"action"`
	Engagement     *policy.ContextualBandit `json:"engagement"`
	SchedProfile   *policy.ContextualBandit `json:"scheduler_profile"`
	IntervalFactor *policy.ContextualBandit `json:"interval_factor"`

	ConceptsMastered int `json:"concepts_mastered"`
}

func NewEngine(rng *rand.Rand) *Engine {
	h := policy.HyperForExperience(0)
	return &Engine{
		Strategy:         policy.NewThompsonBandit(len(Strategies), rng),
		Difficulty:       policy.NewContextualBandit(rng),
		Threshold:        policy.NewContextualBandit(rng),
		RetestMult:       policy.NewContextualBandit(rng),
		Action:           policy.NewQLearner(h.Alpha, h.Gamma, h.Epsilon, rng),
		Engagement:       policy.NewContextualBandit(rng),
		SchedProfile:     policy.NewContextualBandit(rng),
		IntervalFactor:   policy.NewContextualBandit(rng),
		ConceptsMastered: 0,
	}
}

// SetRNG re-injects randomness into every layer; required after decode.
func (e *Engine) SetRNG(rng *rand.Rand) {
	e.Strategy.SetRNG(rng)
	e.Difficulty.SetRNG(rng)
	e.Threshold.SetRNG(rng)
	e.RetestMult.SetRNG(rng)
	e.Action.SetRNG(rng)
	e.Engagement.SetRNG(rng)
	e.SchedProfile.SetRNG(rng)
	e.IntervalFactor.SetRNG(rng)
}

// Refresh re-derives the experience-tiered hyperparameters from the mastered
// count; called at the top of every turn.
func (e *Engine) Refresh() {
	h := policy.HyperForExperience(e.ConceptsMastered)
	e.Action.Alpha = h.Alpha
	e.Action.Gamma = h.Gamma
	e.Action.Epsilon = h.Epsilon
}

// SelectStrategy picks a teaching strategy, skipping arms the exclusion rule
// has marked as reliably poor for this learner.
func (e *Engine) SelectStrategy() (int, string) {
	return e.SelectStrategyExcluding(nil)
}

// SelectStrategyExcluding additionally skips caller-supplied arms, such as
// strategies with a poor track record on the current concept. If the merged
// set would exclude everything, the caller's set is ignored.
func (e *Engine) SelectStrategyExcluding(extra map[int]bool) (int, string) {
	excluded := e.Strategy.ExclusionSet()
	if len(extra) > 0 {
		merged := make(map[int]bool, len(excluded)+len(extra))
		for arm := range excluded {
			merged[arm] = true
		}
		for arm, ok := range extra {
			if ok {
				merged[arm] = true
			}
		}
		if len(merged) < len(Strategies) {
			excluded = merged
		}
	}
	arm := e.Strategy.Select(excluded)
	return arm, Strategies[arm]
}

func (e *Engine) UpdateStrategy(arm int, score float64) {
	e.Strategy.Update(arm, score)
}

// ExcludedStrategies names the currently excluded arms, for diagnostics.
func (e *Engine) ExcludedStrategies() []string {
	var out []string
	for arm := range e.Strategy.ExclusionSet() {
		out = append(out, Strategies[arm])
	}
	return out
}

// SelectDifficulty returns a difficulty level in 1..NumDifficulties.
func (e *Engine) SelectDifficulty(ctx DifficultyContext) int {
	return e.Difficulty.Select(ctx.Key(), NumDifficulties, defaultDifficulty-1) + 1
}

func (e *Engine) UpdateDifficulty(ctx DifficultyContext, level int, reward float64) {
	if level < 1 || level > NumDifficulties {
		return
	}
	e.Difficulty.Update(ctx.Key(), level-1, reward)
}

// SelectThreshold returns the personalized pass threshold for a transfer test.
func (e *Engine) SelectThreshold(ctx DifficultyContext) (int, float64) {
	arm := e.Threshold.Select(ctx.Key(), len(MasteryThresholds), defaultThresholdArm)
	return arm, MasteryThresholds[arm]
}

func (e *Engine) UpdateThreshold(ctx DifficultyContext, arm int, reward float64) {
	e.Threshold.Update(ctx.Key(), arm, reward)
}

// SelectRetestMultiplier returns the factor applied to the threshold when a
// decayed concept is re-tested.
func (e *Engine) SelectRetestMultiplier(ctx DifficultyContext) (int, float64) {
	arm := e.RetestMult.Select(ctx.Key(), len(RetestMultipliers), defaultRetestMultArm)
	return arm, RetestMultipliers[arm]
}

func (e *Engine) UpdateRetestMultiplier(ctx DifficultyContext, arm int, reward float64) {
	e.RetestMult.Update(ctx.Key(), arm, reward)
}

// SelectAction picks the next macro-action for the state, with a
// status-appropriate default before any Q values exist.
func (e *Engine) SelectAction(state ActionState) string {
	def, ok := coldStartActions[state.Status]
	if !ok {
		def = "teach"
	}
	return e.Action.Select(state.Key(), Actions, def)
}

func (e *Engine) UpdateAction(state ActionState, action string, reward float64, next ActionState) {
	e.Action.Update(state.Key(), action, reward, next.Key())
}

// UpdateActionKey credits a decision whose state key was captured earlier,
// as happens when the decision and its outcome span two turns.
func (e *Engine) UpdateActionKey(stateKey, action string, reward float64, nextKey string) {
	e.Action.Update(stateKey, action, reward, nextKey)
}

// SelectEngagement picks an interaction profile conditioned on the live
// session signals: how long the sitting has run, how it is going and at what
// pace.
func (e *Engine) SelectEngagement(ctx EngagementContext) (int, EngagementProfile) {
	arm := e.Engagement.Select(ctx.Key(), len(EngagementProfiles), defaultEngagementArm)
	return arm, EngagementProfiles[arm]
}

// UpdateEngagementKey credits an engagement selection against the context key
// captured when it was made; selection and reward span turns.
func (e *Engine) UpdateEngagementKey(key string, arm int, reward float64) {
	e.Engagement.Update(key, arm, reward)
}

// SelectSchedulerProfile picks the SM-2 parameter set for a review,
// conditioned on the concept's decay history.
func (e *Engine) SelectSchedulerProfile(ctx ReviewContext) (int, scheduler.Profile) {
	arm := e.SchedProfile.Select(ctx.Key(), len(scheduler.Profiles), defaultSchedulerArm)
	return arm, scheduler.ProfileAt(arm)
}

// UpdateSchedulerProfileKey rewards the profile that scheduled a review once
// that review actually happens, keyed by the context stored with the item.
func (e *Engine) UpdateSchedulerProfileKey(key string, arm int, reward float64) {
	e.SchedProfile.Update(key, arm, reward)
}

// SelectIntervalFactor picks the personalized interval multiplier; the
// scheduler clamps it again on its side.
func (e *Engine) SelectIntervalFactor(ctx ReviewContext) (int, float64) {
	arm := e.IntervalFactor.Select(ctx.Key(), len(IntervalFactors), defaultIntervalFactor)
	return arm, scheduler.ClampIntervalFactor(IntervalFactors[arm])
}

func (e *Engine) UpdateIntervalFactor(ctx ReviewContext, arm int, reward float64) {
	e.IntervalFactor.Update(ctx.Key(), arm, reward)
}

// NoteMastered bumps the experience counter that drives the hyperparameter
// tiers.
func (e *Engine) NoteMastered() {
	e.ConceptsMastered++
	e.Refresh()
}

// Marshal serializes the whole engine into the policy-state blob.
func (e *Engine) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a policy-state blob into a ready engine. Missing layers
// (older blobs) are recreated fresh so decode never yields nil layers.
func Unmarshal(data []byte, rng *rand.Rand) (*Engine, error) {
	e := NewEngine(rng)
	if len(data) > 0 {
		if err := json.Unmarshal(data, e); err != nil {
			return nil, err
		}
	}
	if e.Strategy == nil {
		e.Strategy = policy.NewThompsonBandit(len(Strategies), rng)
	}
	if e.Difficulty == nil {
		e.Difficulty = policy.NewContextualBandit(rng)
	}
	if e.Threshold == nil {
		e.Threshold = policy.NewContextualBandit(rng)
	}
	if e.RetestMult == nil {
		e.RetestMult = policy.NewContextualBandit(rng)
	}
	if e.Action == nil {
		h := policy.HyperForExperience(e.ConceptsMastered)
		e.Action = policy.NewQLearner(h.Alpha, h.Gamma, h.Epsilon, rng)
	}
	if e.Engagement == nil {
		e.Engagement = policy.NewContextualBandit(rng)
	}
	if e.SchedProfile == nil {
		e.SchedProfile = policy.NewContextualBandit(rng)
	}
	if e.IntervalFactor == nil {
		e.IntervalFactor = policy.NewContextualBandit(rng)
	}
	e.SetRNG(rng)
	e.Refresh()
	return e, nil
}

// Stats is the read-only snapshot exposed by the policy-stats endpoint.
type Stats struct {
	ConceptsMastered   int                `json:"concepts_mastered"`
	StrategyExpected   map[string]float64 `json:"strategy_expected"`
	ExcludedStrategies []string           `json:"excluded_strategies,omitempty"`
	ActionStates       int                `json:"action_states_explored"`
	ActionEpsilon      float64            `json:"action_epsilon"`
	DifficultyContexts int                `json:"difficulty_contexts_seen"`
	EngagementContexts int                `json:"engagement_contexts_seen"`
	SchedulerContexts  int                `json:"scheduler_contexts_seen"`
}

func (e *Engine) Snapshot() Stats {
	expected := make(map[string]float64, len(Strategies))
	for i, name := range Strategies {
		expected[name] = e.Strategy.Arms[i].Expected()
	}
	return Stats{
		ConceptsMastered:   e.ConceptsMastered,
		StrategyExpected:   expected,
		ExcludedStrategies: e.ExcludedStrategies(),
		ActionStates:       e.Action.StatesExplored(),
		ActionEpsilon:      e.Action.Epsilon,
		DifficultyContexts: e.Difficulty.ContextsSeen(),
		EngagementContexts: e.Engagement.ContextsSeen(),
		SchedulerContexts:  e.SchedProfile.ContextsSeen(),
	}
}
