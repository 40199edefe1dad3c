package content

import (
	"fmt"
	"strings"
)

// ValidateGenerated enforces the generator contract on decoded output.
func ValidateGenerated(req GenerateRequest, g Generated) error {
	if strings.TrimSpace(g.Content) == "" {
		return fmt.Errorf("empty content")
	}
	if strings.TrimSpace(g.Context) == "" {
		return fmt.Errorf("missing context label")
	}
	if g.Kind != req.Kind {
		return fmt.Errorf("kind mismatch: asked %q got %q", req.Kind, g.Kind)
	}
	if (req.Kind == KindTest || req.Kind == KindExercise) && strings.TrimSpace(g.Prompt) == "" {
		return fmt.Errorf("%s output missing prompt", req.Kind)
	}
	return nil
}

// ValidateEvaluation enforces the evaluator contract: score bounds, flag ids
// restricted to the known catalog when one was provided, confidences in
// range.
func ValidateEvaluation(req EvaluateRequest, ev Evaluation) error {
	if ev.Score < 0 || ev.Score > 1 {
		return fmt.Errorf("score %v out of [0,1]", ev.Score)
	}
	if ev.ExplainQuality != nil && (*ev.ExplainQuality < 0 || *ev.ExplainQuality > 1) {
		return fmt.Errorf("explain quality %v out of [0,1]", *ev.ExplainQuality)
	}
	known := make(map[string]bool, len(req.KnownMisconceptions))
	for _, m := range req.KnownMisconceptions {
		known[m.ID] = true
	}
	for _, f := range ev.Misconceptions {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("misconception flag with empty id")
		}
		if f.Confidence < 0 || f.Confidence > 1 {
			return fmt.Errorf("misconception %q confidence %v out of [0,1]", f.ID, f.Confidence)
		}
		if len(known) > 0 && !known[f.ID] {
			return fmt.Errorf("misconception %q not in the provided catalog", f.ID)
		}
	}
	return nil
}
