package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/masteryloop-backend/internal/content"
	"github.com/yungbote/masteryloop-backend/internal/mastery"
	"github.com/yungbote/masteryloop-backend/internal/rl"
	"github.com/yungbote/masteryloop-backend/internal/scheduler"
)

// errBudget is internal control flow: the step budget ran out mid-turn.
// It never escapes; the turn ends with an incomplete result instead.
var errBudget = errors.New("orchestrator: step budget exhausted")

const fallbackStrategy = "worked_examples"

// A passed probe infers partial mastery without counting as a transfer
// context; the concept still has to be validated through the normal loop.
const (
	diagnosticPassScore     = 0.7
	diagnosticInferredScore = 0.75
)

type turn struct {
	o      *Orchestrator
	snap   *LearnerSnapshot
	result *TurnResult
	events []Event
	steps  int
}

func (o *Orchestrator) newTurn(snap *LearnerSnapshot) *turn {
	return &turn{
		o:    o,
		snap: snap,
		result: &TurnResult{
			SessionID: snap.Session.ID,
		},
	}
}

// step consumes one unit of the turn budget. Phase transitions and
// collaborator dispatches both pay it.
func (t *turn) step() error {
	t.steps++
	if t.steps > t.o.cfg.MaxTurnSteps {
		return errBudget
	}
	return nil
}

func (t *turn) emit(typ string, payload map[string]any) {
	ev := Event{Type: typ, SessionID: t.snap.Session.ID, Payload: payload, At: t.o.now()}
	t.events = append(t.events, ev)
	if t.o.sink != nil {
		t.o.sink.Publish(t.snap.LearnerID, ev)
	}
}

func (t *turn) transition(to Phase) error {
	if err := t.step(); err != nil {
		return err
	}
	from := t.snap.Session.Phase
	t.snap.Session.Phase = to
	t.emit("phase_change", map[string]any{"from": string(from), "to": string(to)})
	return nil
}

// StartSession opens a sitting for the learner: decay check, review queue,
// concept selection and the first teach round, up to the step budget.
func (o *Orchestrator) StartSession(ctx context.Context, learnerID uuid.UUID) (*TurnResult, error) {
	snap, err := o.store.LoadSnapshot(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if snap.Session.Active() {
		return nil, ErrSessionConflict
	}

	now := o.now()
	snap.Session = &Session{
		ID:        uuid.New(),
		LearnerID: learnerID,
		Phase:     PhaseIdle,
		StartedAt: now,
	}
	snap.Policy.SetRNG(o.rng)
	snap.Policy.Refresh()

	// a fresh sitting has no signals yet; the zero context is its own bucket
	ectx := rl.EngagementContext{}
	engArm, engProfile := snap.Policy.SelectEngagement(ectx)
	snap.Session.EngagementArm = engArm
	snap.Session.Engagement = engProfile.Name
	snap.Session.EngagementCtx = ectx.Key()

	t := o.newTurn(snap)
	t.applyDecay(now)
	t.result.DueReviews = t.dueReviews(now)

	if err := t.run(ctx, PhaseSelectConcept); err != nil {
		if errors.Is(err, errBudget) {
			return t.finishIncomplete(ctx)
		}
		return nil, err
	}
	return t.finish(ctx)
}

// StartDiagnostic opens a sitting with a probe sequence that places the
// learner in the catalog before normal concept selection begins.
func (o *Orchestrator) StartDiagnostic(ctx context.Context, learnerID uuid.UUID) (*TurnResult, error) {
	snap, err := o.store.LoadSnapshot(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if snap.Session.Active() {
		return nil, ErrSessionConflict
	}

	now := o.now()
	snap.Session = &Session{
		ID:              uuid.New(),
		LearnerID:       learnerID,
		Phase:           PhaseIdle,
		StartedAt:       now,
		ProbesRemaining: o.cfg.DiagnosticProbeCap,
	}
	snap.Policy.SetRNG(o.rng)
	snap.Policy.Refresh()

	ectx := rl.EngagementContext{}
	engArm, engProfile := snap.Policy.SelectEngagement(ectx)
	snap.Session.EngagementArm = engArm
	snap.Session.Engagement = engProfile.Name
	snap.Session.EngagementCtx = ectx.Key()

	t := o.newTurn(snap)
	t.applyDecay(now)
	t.result.DueReviews = t.dueReviews(now)

	probeID, ok := t.nextProbe()
	if ok {
		snap.Session.ConceptID = probeID
		t.choosePolicies(snap.record(probeID, now))
		err = t.run(ctx, PhaseDiagnostic)
	} else {
		snap.Session.ProbesRemaining = 0
		err = t.run(ctx, PhaseSelectConcept)
	}
	if err != nil {
		if errors.Is(err, errBudget) {
			return t.finishIncomplete(ctx)
		}
		return nil, err
	}
	return t.finish(ctx)
}

// Resume continues a session that stopped mid-turn on the step budget: it
// re-presents the pending task if one exists, otherwise drives the machine
// onward from the current phase.
func (o *Orchestrator) Resume(ctx context.Context, learnerID, sessionID uuid.UUID) (*TurnResult, error) {
	snap, err := o.store.LoadSnapshot(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	sess := snap.Session
	if !sess.Active() {
		return nil, ErrNoSession
	}
	if sess.ID != sessionID {
		return nil, ErrSessionConflict
	}
	if sess.Pending != nil {
		return &TurnResult{
			SessionID: sess.ID,
			Phase:     sess.Phase,
			ConceptID: sess.ConceptID,
			Task:      sess.Pending,
		}, nil
	}

	snap.Policy.SetRNG(o.rng)
	snap.Policy.Refresh()
	t := o.newTurn(snap)
	if err := t.run(ctx, sess.Phase); err != nil {
		if errors.Is(err, errBudget) {
			return t.finishIncomplete(ctx)
		}
		if errors.Is(err, ErrContentUnavailable) {
			o.noteCollabFailure(ctx, learnerID, sessionID)
		}
		return nil, err
	}
	return t.finish(ctx)
}

// HandleResponse consumes the learner's answer to the pending task and
// drives the machine to the next blocking point.
func (o *Orchestrator) HandleResponse(ctx context.Context, learnerID, sessionID uuid.UUID, response string, confidence *float64) (*TurnResult, error) {
	snap, err := o.store.LoadSnapshot(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	sess := snap.Session
	if !sess.Active() {
		return nil, ErrNoSession
	}
	if sess.ID != sessionID {
		return nil, ErrSessionConflict
	}
	if sess.Pending == nil {
		return nil, fmt.Errorf("%w: no pending task in phase %s", ErrInvalidTransition, sess.Phase)
	}

	snap.Policy.SetRNG(o.rng)
	snap.Policy.Refresh()

	now := o.now()
	t := o.newTurn(snap)
	pending := *sess.Pending
	sess.Pending = nil
	sess.TurnCount++

	rec := snap.record(sess.ConceptID, now)
	ev, err := t.dispatchEvaluate(ctx, rec, pending, response)
	if err != nil {
		if errors.Is(err, errBudget) {
			return t.finishIncomplete(ctx)
		}
		t.emit("error", map[string]any{"op": "evaluate", "error": err.Error()})
		if errors.Is(err, ErrContentUnavailable) {
			o.noteCollabFailure(ctx, learnerID, sessionID)
		}
		return nil, err
	}
	t.result.Evaluation = &ev

	if confidence != nil {
		gap := mastery.RecordCalibration(rec, *confidence, ev.Score)
		t.emit("calibration", map[string]any{"gap": gap, "trend": mastery.CalibrationTrend(rec.CalibrationGaps)})
	}
	rec.RecordStrategy(sess.Strategy, ev.Score)

	flagged := make([]string, 0, len(ev.Misconceptions))
	for _, f := range ev.Misconceptions {
		flagged = append(flagged, f.ID)
	}
	resolved := mastery.ObserveCleanEvaluation(rec, flagged)
	for _, f := range ev.Misconceptions {
		mastery.DetectMisconceptions(rec, []string{f.ID}, f.Confidence, now)
	}

	var runErr error
	switch {
	case pending.Diagnostic:
		runErr = t.afterDiagnostic(ctx, rec, ev, now)
	case pending.Kind == content.KindExercise:
		runErr = t.afterPractice(ctx, rec, ev)
	case pending.Kind == content.KindTest:
		runErr = t.afterTest(ctx, rec, pending, ev, flagged, resolved, now)
	default:
		return nil, fmt.Errorf("%w: unexpected pending kind %q", ErrInvalidTransition, pending.Kind)
	}
	if runErr != nil {
		if errors.Is(runErr, errBudget) {
			return t.finishIncomplete(ctx)
		}
		if errors.Is(runErr, ErrContentUnavailable) {
			o.noteCollabFailure(ctx, learnerID, sessionID)
		}
		return nil, runErr
	}
	return t.finish(ctx)
}

// noteCollabFailure books one collaborator failure against the stored
// session, on a fresh snapshot so none of the abandoned turn's other
// mutations leak into storage. Crossing the cap ends the session.
func (o *Orchestrator) noteCollabFailure(ctx context.Context, learnerID, sessionID uuid.UUID) {
	snap, err := o.store.LoadSnapshot(ctx, learnerID)
	if err != nil || !snap.Session.Active() || snap.Session.ID != sessionID {
		return
	}
	sess := snap.Session
	sess.CollabFailures++
	events := []Event{{
		Type:      "error",
		SessionID: sess.ID,
		Payload:   map[string]any{"op": "collaborator", "consecutive_failures": sess.CollabFailures},
		At:        o.now(),
	}}
	if sess.CollabFailures >= o.cfg.MaxConsecutiveFailures {
		sess.Phase = PhaseIdle
		sess.Pending = nil
		o.log.Warn("session abandoned after repeated collaborator failures",
			"session_id", sess.ID.String(),
			"failures", sess.CollabFailures,
		)
		events = append(events, Event{
			Type:      "result",
			SessionID: sess.ID,
			Payload:   map[string]any{"abandoned": true, "failures": sess.CollabFailures},
			At:        o.now(),
		})
	}
	if err := o.store.SaveTurn(ctx, snap, events); err != nil {
		o.log.Error("collaborator failure bookkeeping failed", "error", err)
		return
	}
	if o.sink != nil {
		for _, ev := range events {
			o.sink.Publish(learnerID, ev)
		}
	}
}

// afterDiagnostic folds a probe result in: a strong answer infers partial
// mastery so the loop starts past material the learner already knows.
func (t *turn) afterDiagnostic(ctx context.Context, rec *mastery.ConceptRecord, ev content.Evaluation, now time.Time) error {
	sess := t.snap.Session
	if sess.ProbesRemaining > 0 {
		sess.ProbesRemaining--
	}
	passed := ev.Score >= diagnosticPassScore
	if passed {
		if rec.Status == mastery.StatusUnseen {
			rec.Transition(mastery.StatusIntroduced)
		}
		rec.Transition(mastery.StatusPracticing)
		if rec.Score < diagnosticInferredScore {
			rec.Score = diagnosticInferredScore
		}
	}
	t.emit("diagnostic", map[string]any{"concept_id": sess.ConceptID, "passed": passed, "score": ev.Score})

	if sess.ProbesRemaining > 0 {
		if probeID, ok := t.nextProbe(); ok {
			sess.ConceptID = probeID
			t.choosePolicies(t.snap.record(probeID, now))
			return t.run(ctx, PhaseDiagnostic)
		}
		sess.ProbesRemaining = 0
	}
	return t.run(ctx, PhaseSelectConcept)
}

// nextProbe walks the catalog in order for the next concept this learner has
// never seen and not yet probed this session.
func (t *turn) nextProbe() (string, bool) {
	probed := make(map[string]bool, len(t.snap.Session.ProbedConcepts))
	for _, id := range t.snap.Session.ProbedConcepts {
		probed[id] = true
	}
	for _, c := range t.o.graph.All() {
		if probed[c.ID] {
			continue
		}
		rec, ok := t.snap.Records[c.ID]
		if !ok || rec.Status == mastery.StatusUnseen {
			return c.ID, true
		}
	}
	return "", false
}

// afterPractice folds a practice evaluation in and moves to the transfer
// test.
func (t *turn) afterPractice(ctx context.Context, rec *mastery.ConceptRecord, ev content.Evaluation) error {
	sess := t.snap.Session
	dctx := t.difficultyContext(rec)
	t.snap.Policy.UpdateDifficulty(dctx, sess.Difficulty, rl.DifficultyReward(ev.Score, sess.Threshold))

	if rec.Status == mastery.StatusIntroduced {
		rec.Transition(mastery.StatusPracticing)
	}
	return t.run(ctx, PhaseTransferTest)
}

// afterTest is the full post-evaluation pipeline: mastery update, review
// scheduling, policy updates and the advance / retest / reteach decision.
func (t *turn) afterTest(ctx context.Context, rec *mastery.ConceptRecord, pending PendingTask, ev content.Evaluation, flagged, resolved []string, now time.Time) error {
	sess := t.snap.Session
	engine := t.snap.Policy

	threshold := sess.Threshold
	passed := ev.Score >= threshold
	wasRetest := pending.Retest
	wasReview := sess.ReviewDue
	sess.Retest = false
	sess.ReviewDue = false

	outcome := mastery.TestOutcome{
		TestID:         uuid.NewString(),
		Context:        pending.Context,
		Score:          ev.Score,
		Passed:         passed,
		Misconceptions: flagged,
		At:             now,
	}
	sig := mastery.Signals{Transfer: ev.Score}
	if ev.ExplainQuality != nil {
		sig.Explain, sig.HasExplain = *ev.ExplainQuality, true
	}
	mastery.ApplyEvaluation(rec, outcome, sig, now)

	dctx := t.difficultyContext(rec)
	if wasRetest {
		engine.UpdateRetestMultiplier(dctx, sess.RetestArm, rl.DifficultyReward(ev.Score, threshold))
	}
	// a scheduled review pays the profile that set its due date: the reward
	// is whether the material survived the interval, not today's raw score
	if wasReview && rec.Review.ProfileCtx != "" {
		retained := 0.0
		if passed {
			retained = 1.0
		}
		engine.UpdateSchedulerProfileKey(rec.Review.ProfileCtx, rec.Review.ProfileArm, retained)
	}

	// schedule the next review with the learned profile and interval factor
	rctx := t.reviewContext(rec)
	profArm, prof := engine.SelectSchedulerProfile(rctx)
	factorArm, factor := engine.SelectIntervalFactor(rctx)
	scheduler.Schedule(&rec.Review, ev.Score, len(rec.ActiveMisconceptions()), prof, factor, now)
	rec.Review.ProfileArm = profArm
	rec.Review.ProfileCtx = rctx.Key()
	engine.UpdateIntervalFactor(rctx, factorArm, ev.Score)

	// bandit updates
	engine.UpdateStrategy(sess.StrategyArm, ev.Score)
	engine.UpdateThreshold(dctx, sess.ThresholdArm, rl.DifficultyReward(ev.Score, threshold))
	engine.UpdateDifficulty(dctx, sess.Difficulty, rl.DifficultyReward(ev.Score, threshold))

	mastered := false
	if passed {
		sess.FailStreak = 0
		minScore, needContexts := t.masteryCriteria(sess.ConceptID)
		if rec.Score >= minScore && rec.DistinctPassedContexts() >= needContexts {
			if rec.Status != mastery.StatusTesting {
				rec.Transition(mastery.StatusTesting)
			}
			if mastery.MarkMastered(rec, now) {
				mastered = true
				engine.NoteMastered()
				t.result.Mastered = true
				t.emit("result", map[string]any{"concept_id": sess.ConceptID, "mastered": true, "score": rec.Score})
			}
		}
	} else {
		sess.FailStreak++
	}

	// the engagement profile answers for the learner's state after the turn,
	// then gets re-picked against the session as it now stands
	engine.UpdateEngagementKey(sess.EngagementCtx, sess.EngagementArm,
		rl.EngagementReward(sess.FailStreak, rec.RecentScores(3)))
	ectx := t.engagementContext(rec, now)
	engArm, engProfile := engine.SelectEngagement(ectx)
	sess.EngagementArm = engArm
	sess.Engagement = engProfile.Name
	sess.EngagementCtx = ectx.Key()

	reward := rl.TurnReward(rl.TurnRewardInputs{
		Mastered:            mastered,
		TestTaken:           true,
		TestScore:           ev.Score,
		TestPassed:          passed,
		MisconceptionsFound: len(flagged),
		MisconsResolved:     len(resolved),
		Steps:               t.steps,
	})
	nextState := t.actionState(rec)
	if sess.LastAction != "" && sess.LastActionState != "" {
		engine.UpdateActionKey(sess.LastActionState, sess.LastAction, reward, nextState.Key())
	}
	sess.LastActionState = nextState.Key()

	switch {
	case mastered:
		rec.Incomplete = false
		return t.run(ctx, PhaseSelectConcept)
	case passed:
		// passed in this context but mastery needs another distinct one
		rec.Incomplete = false
		rec.Transition(mastery.StatusTesting)
		sess.LastAction = "test"
		return t.run(ctx, PhaseTransferTest)
	}

	// failed: the margin decides. Close to the threshold earns a cheaper
	// retest at a reduced bar; far below it means the teaching did not land
	// and the concept is re-taught from a different angle.
	retestArm, mult := engine.SelectRetestMultiplier(dctx)
	if ev.Score >= threshold*mult {
		sess.RetestArm = retestArm
		sess.Retest = true
		sess.LastAction = "test"
		t.emit("result", map[string]any{"concept_id": sess.ConceptID, "retest": true, "score": ev.Score})
		return t.run(ctx, PhaseTransferTest)
	}

	sess.LastAction = "reteach"
	sess.ReteachTargets = rec.ActiveMisconceptions()
	if target := demotionFor(rec); target != rec.Status {
		rec.Transition(target)
	}
	// the strategy that just failed took its reward; rule it out alongside
	// the ones with a poor record on this concept
	excluded := conceptStrategyExclusions(rec)
	if excluded == nil {
		excluded = make(map[int]bool, 1)
	}
	excluded[sess.StrategyArm] = true
	previous := sess.Strategy
	sess.StrategyArm, sess.Strategy = engine.SelectStrategyExcluding(excluded)
	t.emit("policy", map[string]any{"reteach": true, "strategy_from": previous, "strategy_to": sess.Strategy})
	return t.run(ctx, PhaseTeach)
}

// demotionFor maps the record's evidence onto the status band a failed test
// leaves it in; mastery is never awarded on a failure.
func demotionFor(rec *mastery.ConceptRecord) mastery.Status {
	target := mastery.StatusForScore(rec.Score, rec.DistinctPassedContexts())
	if target == mastery.StatusMastered {
		target = mastery.StatusTesting
	}
	return target
}

// run advances the machine from the given phase until it blocks on learner
// input, completes, or the budget runs out.
func (t *turn) run(ctx context.Context, entry Phase) error {
	sess := t.snap.Session
	if err := t.transition(entry); err != nil {
		return err
	}
	for {
		t.result.Phase = sess.Phase
		t.result.ConceptID = sess.ConceptID
		switch sess.Phase {
		case PhaseSelectConcept:
			next, err := t.selectConcept()
			if err != nil {
				return err
			}
			if err := t.transition(next); err != nil {
				return err
			}

		case PhaseTeach:
			rec := t.snap.record(sess.ConceptID, t.o.now())
			lesson, err := t.generateUnique(ctx, rec, t.generateRequest(content.KindLesson, rec))
			if err != nil {
				return err
			}
			rec.AddContext(lesson.Context)
			if len(sess.ReteachTargets) > 0 {
				mastery.MarkAddressed(rec, sess.ReteachTargets)
			}
			if rec.Status == mastery.StatusUnseen {
				rec.Transition(mastery.StatusIntroduced)
			}
			t.result.Lesson = &lesson
			if err := t.transition(PhasePractice); err != nil {
				return err
			}

		case PhasePractice:
			rec := t.snap.record(sess.ConceptID, t.o.now())
			ex, err := t.generateUnique(ctx, rec, t.generateRequest(content.KindExercise, rec))
			if err != nil {
				return err
			}
			rec.AddContext(ex.Context)
			t.block(ex, false)
			return nil

		case PhaseTransferTest:
			rec := t.snap.record(sess.ConceptID, t.o.now())
			if ok := rec.Transition(mastery.StatusTesting); !ok && rec.Status != mastery.StatusTesting {
				return fmt.Errorf("%w: %s cannot enter testing from %s", ErrInvalidTransition, sess.ConceptID, rec.Status)
			}
			req := t.generateRequest(content.KindTest, rec)
			test, err := t.generateUnique(ctx, rec, req)
			if err != nil {
				return err
			}
			rec.AddContext(test.Context)
			t.block(test, sess.Retest)
			return nil

		case PhaseDiagnostic:
			rec := t.snap.record(sess.ConceptID, t.o.now())
			probe, err := t.generateUnique(ctx, rec, t.generateRequest(content.KindTest, rec))
			if err != nil {
				return err
			}
			rec.AddContext(probe.Context)
			sess.ProbedConcepts = append(sess.ProbedConcepts, sess.ConceptID)
			t.block(probe, false)
			sess.Pending.Diagnostic = true
			return nil

		case PhaseComplete:
			t.result.Phase = PhaseComplete
			t.emit("result", map[string]any{"session_complete": true})
			return nil

		default:
			return fmt.Errorf("%w: phase %s has no driver", ErrInvalidTransition, sess.Phase)
		}
	}
}

// selectConcept picks what to work on next: an overdue decayed concept wins
// over fresh material; fresh material is the transfer-optimal unlocked node.
func (t *turn) selectConcept() (Phase, error) {
	sess := t.snap.Session
	now := t.o.now()

	sess.Retest = false
	sess.ReteachTargets = nil

	if due := t.dueReviews(now); len(due) > 0 {
		if rec, ok := t.snap.Records[due[0].ConceptID]; ok && rec.Status == mastery.StatusDecayed {
			sess.ConceptID = due[0].ConceptID
			sess.Retest = true
			sess.ReviewDue = true
			t.choosePolicies(rec)
			// decayed concepts skip teaching and go straight to a
			// reduced-threshold retest
			arm, mult := t.snap.Policy.SelectRetestMultiplier(t.difficultyContext(rec))
			sess.RetestArm = arm
			sess.Threshold = sess.Threshold * mult
			return PhaseTransferTest, nil
		}
	}

	concept, ok := t.o.graph.NextConcept(t.snap.MasteredSet())
	if !ok {
		return PhaseComplete, nil
	}
	sess.ConceptID = concept.ID
	rec := t.snap.record(concept.ID, now)
	t.choosePolicies(rec)

	state := t.actionState(rec)
	sess.LastActionState = state.Key()

	// never test or drill what was never introduced
	if rec.Status == mastery.StatusUnseen {
		sess.LastAction = "teach"
		return PhaseTeach, nil
	}

	action := t.snap.Policy.SelectAction(state)
	sess.LastAction = action
	switch action {
	case "practice":
		return PhasePractice, nil
	case "test", "skip_ahead":
		return PhaseTransferTest, nil
	default:
		return PhaseTeach, nil
	}
}

func (t *turn) choosePolicies(rec *mastery.ConceptRecord) {
	sess := t.snap.Session
	engine := t.snap.Policy
	dctx := t.difficultyContext(rec)

	sess.StrategyArm, sess.Strategy = engine.SelectStrategyExcluding(conceptStrategyExclusions(rec))
	sess.Difficulty = engine.SelectDifficulty(dctx)
	sess.ThresholdArm, sess.Threshold = engine.SelectThreshold(dctx)
	t.emit("policy", map[string]any{
		"strategy":   sess.Strategy,
		"difficulty": sess.Difficulty,
		"threshold":  sess.Threshold,
	})
}

// conceptStrategyExclusions marks strategies that have already scored poorly
// on this concept, so a reteach reaches for a different angle.
func conceptStrategyExclusions(rec *mastery.ConceptRecord) map[int]bool {
	const floor = 0.3
	var out map[int]bool
	for arm, name := range rl.Strategies {
		stat, ok := rec.StrategyStats[name]
		if !ok || stat.Count == 0 {
			continue
		}
		if stat.Rate() < floor {
			if out == nil {
				out = make(map[int]bool)
			}
			out[arm] = true
		}
	}
	return out
}

// block records the pending task the session now waits on.
func (t *turn) block(g content.Generated, retest bool) {
	sess := t.snap.Session
	sess.Pending = &PendingTask{
		Kind:    g.Kind,
		Context: g.Context,
		Content: g.Content,
		Prompt:  g.Prompt,
		Hints:   g.Hints,
		Retest:  retest,
	}
	t.result.Task = sess.Pending
	t.result.Phase = sess.Phase
}

func (t *turn) generateRequest(kind content.Kind, rec *mastery.ConceptRecord) content.GenerateRequest {
	sess := t.snap.Session
	req := content.GenerateRequest{
		Kind:       kind,
		ConceptID:  sess.ConceptID,
		Strategy:   sess.Strategy,
		Difficulty: sess.Difficulty,
		Tone:       sess.Engagement,
	}
	if c, ok := t.o.graph.Get(sess.ConceptID); ok {
		req.ConceptName = c.Name
		req.Description = c.Description
		req.CandidateContexts = c.Contexts
	}
	req.AvoidContexts = append(req.AvoidContexts, rec.ContextsUsed...)
	if kind == content.KindLesson && len(sess.ReteachTargets) > 0 {
		req.Kind = content.KindReteach
		req.TargetMisconceptions = sess.ReteachTargets
	}
	return req
}

// generateUnique dispatches the generator, regenerating once if the result
// reuses a context this learner has already seen, and falling back to a
// conservative profile before giving up with ErrContentUnavailable.
func (t *turn) generateUnique(ctx context.Context, rec *mastery.ConceptRecord, req content.GenerateRequest) (content.Generated, error) {
	g, err := t.dispatchGenerate(ctx, req)
	if err == nil && rec.HasUsedContext(g.Context) {
		t.emit("tool_retry", map[string]any{"op": "generate", "reason": "context_reused", "context": g.Context})
		req.AvoidContexts = append(req.AvoidContexts, g.Context)
		g, err = t.dispatchGenerate(ctx, req)
		if err == nil && rec.HasUsedContext(g.Context) {
			err = content.Malformed("generate", fmt.Errorf("context %q reused twice", g.Context))
		}
	}
	if err == nil {
		return g, nil
	}
	if errors.Is(err, errBudget) {
		return content.Generated{}, err
	}

	// one fallback attempt with a conservative profile
	t.emit("tool_retry", map[string]any{"op": "generate", "reason": "fallback_profile", "error": err.Error()})
	fb := req
	fb.Strategy = fallbackStrategy
	fb.Difficulty = 1
	g, err = t.dispatchGenerate(ctx, fb)
	if err == nil && rec.HasUsedContext(g.Context) {
		err = content.Malformed("generate", fmt.Errorf("context %q reused", g.Context))
	}
	if err != nil {
		if errors.Is(err, errBudget) {
			return content.Generated{}, err
		}
		t.emit("error", map[string]any{"op": "generate", "error": err.Error()})
		return content.Generated{}, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	return g, nil
}

func (t *turn) dispatchGenerate(ctx context.Context, req content.GenerateRequest) (content.Generated, error) {
	if err := t.step(); err != nil {
		return content.Generated{}, err
	}
	t.emit("tool_start", map[string]any{"op": "generate", "kind": string(req.Kind), "concept_id": req.ConceptID})
	cctx, cancel := context.WithTimeout(ctx, t.o.cfg.CollaboratorTimeout)
	defer cancel()
	g, err := t.o.gen.Generate(cctx, req)
	if err != nil {
		return content.Generated{}, err
	}
	t.emit("tool_complete", map[string]any{"op": "generate", "kind": string(g.Kind), "context": g.Context})
	return g, nil
}

func (t *turn) dispatchEvaluate(ctx context.Context, rec *mastery.ConceptRecord, pending PendingTask, response string) (content.Evaluation, error) {
	req := content.EvaluateRequest{
		ConceptID:       t.snap.Session.ConceptID,
		Task:            pending.Prompt,
		LearnerResponse: response,
	}
	if req.Task == "" {
		req.Task = pending.Content
	}
	if c, ok := t.o.graph.Get(req.ConceptID); ok {
		req.ConceptName = c.Name
		for _, m := range c.Misconceptions {
			req.KnownMisconceptions = append(req.KnownMisconceptions, content.KnownMisconception{
				ID: m.ID, Description: m.Description, Signal: m.Signal,
			})
		}
	}

	attempt := func() (content.Evaluation, error) {
		if err := t.step(); err != nil {
			return content.Evaluation{}, err
		}
		t.emit("tool_start", map[string]any{"op": "evaluate", "concept_id": req.ConceptID})
		cctx, cancel := context.WithTimeout(ctx, t.o.cfg.CollaboratorTimeout)
		defer cancel()
		ev, err := t.o.eval.Evaluate(cctx, req)
		if err != nil {
			return content.Evaluation{}, err
		}
		t.emit("tool_complete", map[string]any{"op": "evaluate", "score": ev.Score})
		return ev, nil
	}

	ev, err := attempt()
	if err != nil && !errors.Is(err, errBudget) && content.IsTransient(err) {
		t.emit("tool_retry", map[string]any{"op": "evaluate", "error": err.Error()})
		ev, err = attempt()
	}
	if err != nil && !errors.Is(err, errBudget) {
		err = fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	return ev, err
}

// applyDecay lowers retention-expired mastered concepts at session start.
func (t *turn) applyDecay(now time.Time) {
	for id, rec := range t.snap.Records {
		if rec.Status != mastery.StatusMastered {
			continue
		}
		if rec.Review.NextReviewAt == nil || rec.Review.NextReviewAt.After(now) {
			continue
		}
		retention := scheduler.Retention(rec.Review, now)
		if mastery.ApplyDecay(rec, retention, now) {
			t.emit("decay", map[string]any{"concept_id": id, "retention": retention, "score": rec.Score})
		}
	}
}

func (t *turn) dueReviews(now time.Time) []scheduler.DueReview {
	items := make(map[string]scheduler.ReviewItem, len(t.snap.Records))
	for id, rec := range t.snap.Records {
		items[id] = rec.Review
	}
	return scheduler.DueQueue(items, now, 10)
}

func (t *turn) difficultyContext(rec *mastery.ConceptRecord) rl.DifficultyContext {
	mastered := 0
	for _, r := range t.snap.Records {
		if r.Status == mastery.StatusMastered {
			mastered++
		}
	}
	introduced := len(t.snap.Records)
	velocity := float64(2*mastered) / float64(introduced+1)
	return rl.DifficultyContext{
		Velocity:             velocity,
		CalibrationGap:       rec.CalibrationGap,
		ActiveMisconceptions: len(rec.ActiveMisconceptions()),
	}
}

func (t *turn) reviewContext(rec *mastery.ConceptRecord) rl.ReviewContext {
	density := 0.0
	if n := len(rec.Misconceptions); n > 0 {
		density = float64(len(rec.ActiveMisconceptions())) / float64(n)
	}
	return rl.ReviewContext{
		SuccessRate:    rec.Review.LastScore,
		EasinessFactor: rec.Review.EasinessFactor,
		MisconDensity:  density,
	}
}

// engagementContext summarizes the sitting so far for the engagement bandit.
func (t *turn) engagementContext(rec *mastery.ConceptRecord, now time.Time) rl.EngagementContext {
	sess := t.snap.Session
	minutes := now.Sub(sess.StartedAt).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	recent := rec.RecentScores(3)
	mean := 0.0
	for _, s := range recent {
		mean += s
	}
	if len(recent) > 0 {
		mean /= float64(len(recent))
	}
	pace := 0.0
	if minutes > 0 {
		pace = float64(sess.TurnCount) / (minutes / 60.0)
	}
	return rl.EngagementContext{SessionMinutes: minutes, MeanScore: mean, TurnsPerHour: pace}
}

func (t *turn) actionState(rec *mastery.ConceptRecord) rl.ActionState {
	return rl.ActionState{
		Status:       string(rec.Status),
		TestCount:    len(rec.Tests),
		FailStreak:   t.snap.Session.FailStreak,
		RecentScores: rec.RecentScores(3),
		Engagement:   rl.EngagementLevel(t.snap.Session.FailStreak, rec.RecentScores(3)),
	}
}

func (t *turn) masteryCriteria(conceptID string) (minScore float64, contexts int) {
	minScore, contexts = 0.7, 2
	if c, ok := t.o.graph.Get(conceptID); ok {
		if c.Criteria.MinScore > 0 {
			minScore = c.Criteria.MinScore
		}
		if c.Criteria.DistinctContexts > 0 {
			contexts = c.Criteria.DistinctContexts
		}
	}
	return minScore, contexts
}

// finish persists the turn atomically and returns the result. A turn that
// made it here had working collaborators, so the consecutive-failure count
// starts over.
func (t *turn) finish(ctx context.Context) (*TurnResult, error) {
	t.result.StepsUsed = t.steps
	t.result.Phase = t.snap.Session.Phase
	t.snap.Session.CollabFailures = 0
	if err := t.o.store.SaveTurn(ctx, t.snap, t.events); err != nil {
		return nil, err
	}
	return t.result, nil
}

// finishIncomplete ends a budget-exhausted turn: the work done so far is
// persisted and the caller gets an incomplete result, not an error. The
// concept being worked carries the incomplete marker until a later test
// clears it.
func (t *turn) finishIncomplete(ctx context.Context) (*TurnResult, error) {
	t.result.Incomplete = true
	t.result.IncompleteReason = IncompleteStepBudget
	if id := t.snap.Session.ConceptID; id != "" {
		if rec, ok := t.snap.Records[id]; ok {
			rec.Incomplete = true
		}
	}
	t.emit("result", map[string]any{"incomplete": true, "reason": IncompleteStepBudget})
	t.o.log.Warn("turn ended on step budget",
		"session_id", t.snap.Session.ID.String(),
		"steps", t.steps,
	)
	return t.finish(ctx)
}
