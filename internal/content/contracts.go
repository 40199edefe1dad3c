// Package content defines the contracts toward the LLM collaborators: one
// generator that produces teaching material and tests, one evaluator that
// scores free-form learner responses. The decision core treats both as
// untrusted externals; everything they return is validated before use.
package content

import "context"

// Kind selects what the generator produces.
type Kind string

const (
	KindLesson   Kind = "lesson"
	KindExercise Kind = "exercise"
	KindTest     Kind = "test"
	KindReteach  Kind = "reteach"
)

// GenerateRequest carries every decision the policy layer already made;
// the generator supplies prose, never pedagogy.
type GenerateRequest struct {
	Kind        Kind   `json:"kind"`
	ConceptID   string `json:"concept_id"`
	ConceptName string `json:"concept_name"`
	Description string `json:"description,omitempty"`
	Strategy    string `json:"strategy"`
	Difficulty  int    `json:"difficulty"`
	Tone        string `json:"tone,omitempty"`

	// CandidateContexts seeds domain ideas; AvoidContexts lists contexts
	// already used with this learner, which the result must not repeat.
	CandidateContexts []string `json:"candidate_contexts,omitempty"`
	AvoidContexts     []string `json:"avoid_contexts,omitempty"`

	// TargetMisconceptions names the misconception ids a reteach or test
	// must surface.
	TargetMisconceptions []string `json:"target_misconceptions,omitempty"`
}

// Generated is validated generator output.
type Generated struct {
	Kind    Kind     `json:"kind"`
	Context string   `json:"context"`
	Content string   `json:"content"`
	Prompt  string   `json:"prompt,omitempty"`
	Hints   []string `json:"hints,omitempty"`
}

// EvaluateRequest asks for a score of one learner response against the task
// it answered.
type EvaluateRequest struct {
	ConceptID       string `json:"concept_id"`
	ConceptName     string `json:"concept_name"`
	Task            string `json:"task"`
	LearnerResponse string `json:"learner_response"`

	// KnownMisconceptions gives the evaluator the catalog ids and signals
	// to probe for.
	KnownMisconceptions []KnownMisconception `json:"known_misconceptions,omitempty"`
}

type KnownMisconception struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Signal      string `json:"signal,omitempty"`
}

// MisconceptionFlag is one detected misconception with evaluator confidence.
type MisconceptionFlag struct {
	ID         string  `json:"id"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

// Evaluation is validated evaluator output. Score is in [0,1]; pass/fail is
// the caller's call against its own threshold.
type Evaluation struct {
	Score          float64             `json:"score"`
	Feedback       string              `json:"feedback,omitempty"`
	Misconceptions []MisconceptionFlag `json:"misconceptions,omitempty"`

	// ExplainQuality is set when the evaluated response was an explain-back.
	ExplainQuality *float64 `json:"explain_quality,omitempty"`
}

// Generator produces teaching material, exercises and transfer tests.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Generated, error)
}

// Evaluator scores learner responses and flags misconceptions.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (Evaluation, error)
}
