package kgraph

import (
	"testing"
)

func testGraph(t *testing.T) *Graph {
	t.Helper()
	concepts := []Concept{
		{ID: "variables", Name: "Variables"},
		{ID: "loops", Name: "Loops", Prerequisites: []string{"variables"}},
		{ID: "functions", Name: "Functions", Prerequisites: []string{"variables"}},
		{ID: "recursion", Name: "Recursion", Prerequisites: []string{"functions"}},
		{ID: "trees", Name: "Trees", Prerequisites: []string{"recursion", "loops"}},
	}
	edges := []TransferEdge{
		{From: "variables", To: "loops", Weight: 0.4},
		{From: "functions", To: "recursion", Weight: 0.9},
		{From: "loops", To: "recursion", Weight: 0.3},
		{From: "recursion", To: "trees", Weight: 0.8},
	}
	g, err := New(concepts, edges)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

func TestUnlockedRespectsPrerequisites(t *testing.T) {
	g := testGraph(t)

	unlocked := g.Unlocked(map[string]bool{})
	if len(unlocked) != 1 || unlocked[0].ID != "variables" {
		t.Fatalf("fresh learner should only unlock the root, got %v", ids(unlocked))
	}

	unlocked = g.Unlocked(map[string]bool{"variables": true})
	if len(unlocked) != 2 {
		t.Fatalf("after variables: got %v", ids(unlocked))
	}

	unlocked = g.Unlocked(map[string]bool{"variables": true, "functions": true, "recursion": true})
	// trees still needs loops
	for _, c := range unlocked {
		if c.ID == "trees" {
			t.Fatalf("trees unlocked without loops")
		}
	}
}

func TestNextConceptMaximizesTransfer(t *testing.T) {
	g := testGraph(t)
	mastered := map[string]bool{"variables": true}

	// functions: incoming 0 from mastered, outgoing 0.9*0.5; loops: incoming
	// 0.4, outgoing 0.3*0.5 -> loops wins
	next, ok := g.NextConcept(mastered)
	if !ok {
		t.Fatalf("expected a candidate")
	}
	if next.ID != "loops" {
		t.Fatalf("next concept: got %q want loops", next.ID)
	}
}

func TestNextConceptExhausted(t *testing.T) {
	g := testGraph(t)
	all := map[string]bool{"variables": true, "loops": true, "functions": true, "recursion": true, "trees": true}
	if _, ok := g.NextConcept(all); ok {
		t.Fatalf("everything mastered should yield no candidate")
	}
}

func TestPathPlanIsValidTopologicalOrder(t *testing.T) {
	g := testGraph(t)
	plan := g.PathPlan(nil)
	if len(plan) != 5 {
		t.Fatalf("plan should cover all concepts, got %v", plan)
	}
	seen := make(map[string]bool)
	for _, id := range plan {
		for _, p := range g.Prerequisites(id) {
			if !seen[p] {
				t.Fatalf("plan places %q before prerequisite %q: %v", id, p, plan)
			}
		}
		seen[id] = true
	}
}

func TestPathPlanSkipsMastered(t *testing.T) {
	g := testGraph(t)
	plan := g.PathPlan(map[string]bool{"variables": true, "loops": true})
	if len(plan) != 3 {
		t.Fatalf("plan length: got %v", plan)
	}
	for _, id := range plan {
		if id == "variables" || id == "loops" {
			t.Fatalf("plan includes mastered concept: %v", plan)
		}
	}
}

func TestPathPlanEstimatesScaleWithVelocity(t *testing.T) {
	g := testGraph(t)

	// testGraph concepts carry no explicit estimate, so the 60-minute
	// default applies
	steps := g.PathPlanWithEstimates(nil, 1.0)
	if len(steps) != 5 {
		t.Fatalf("steps should cover all concepts, got %v", steps)
	}
	for _, s := range steps {
		if s.EstimatedMinutes != 60 {
			t.Fatalf("catalog-pace estimate: got %v want 60", s.EstimatedMinutes)
		}
		if s.Name == "" {
			t.Fatalf("step missing concept name: %+v", s)
		}
	}

	fast := g.PathPlanWithEstimates(nil, 2.0)
	if fast[0].EstimatedMinutes != 30 {
		t.Fatalf("fast learner estimate: got %v want 30", fast[0].EstimatedMinutes)
	}

	// velocity clamps at 0.25, so crawling never blows up the estimate
	slow := g.PathPlanWithEstimates(nil, 0.01)
	if slow[0].EstimatedMinutes != 240 {
		t.Fatalf("clamped slow estimate: got %v want 240", slow[0].EstimatedMinutes)
	}
}

func TestNewRejectsBadCatalogs(t *testing.T) {
	if _, err := New([]Concept{{ID: "a", Prerequisites: []string{"ghost"}}}, nil); err == nil {
		t.Fatalf("unknown prerequisite should fail")
	}
	if _, err := New([]Concept{{ID: "a"}, {ID: "a"}}, nil); err == nil {
		t.Fatalf("duplicate id should fail")
	}
	cyc := []Concept{
		{ID: "a", Prerequisites: []string{"b"}},
		{ID: "b", Prerequisites: []string{"a"}},
	}
	if _, err := New(cyc, nil); err == nil {
		t.Fatalf("cycle should fail")
	}
	if _, err := New([]Concept{{ID: "a"}, {ID: "b"}},
		[]TransferEdge{{From: "a", To: "b", Weight: 1.5}}); err == nil {
		t.Fatalf("out-of-range weight should fail")
	}
}

func TestParseYAML(t *testing.T) {
	doc := []byte(`
concepts:
  - id: variables
    name: Variables
    contexts: [cooking, banking]
    misconceptions:
      - id: type_confusion
        description: mixes up value and reference types
  - id: loops
    name: Loops
    prerequisites: [variables]
    criteria:
      min_score: 0.75
      distinct_contexts: 2
transfer_edges:
  - {from: variables, to: loops, weight: 0.4}
`)
	g, err := ParseYAML(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c, ok := g.Get("loops")
	if !ok || c.Criteria.MinScore != 0.75 {
		t.Fatalf("loops criteria: %+v", c)
	}
	v, _ := g.Get("variables")
	if len(v.Misconceptions) != 1 || v.Misconceptions[0].ID != "type_confusion" {
		t.Fatalf("variables misconceptions: %+v", v.Misconceptions)
	}
	if len(g.TransferEdgesFrom("variables")) != 1 {
		t.Fatalf("transfer edges missing")
	}
}

func ids(cs []*Concept) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}
