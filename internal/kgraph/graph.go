// Package kgraph holds the concept catalog: a typed prerequisite DAG with
// weighted transfer edges, loaded from YAML at startup and optionally
// mirrored into Neo4j.
package kgraph

import (
	"container/heap"
	"fmt"
)

// Misconception is a misconception the catalog knows about in advance, with
// the answer signal evaluators look for.
type Misconception struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
	Signal      string `yaml:"signal,omitempty" json:"signal,omitempty"`
}

// MasteryCriteria pins per-concept overrides for the default mastery rule.
type MasteryCriteria struct {
	MinScore         float64 `yaml:"min_score,omitempty" json:"min_score,omitempty"`
	DistinctContexts int     `yaml:"distinct_contexts,omitempty" json:"distinct_contexts,omitempty"`
}

// Concept is one catalog node.
type Concept struct {
	ID               string          `yaml:"id" json:"id"`
	Name             string          `yaml:"name" json:"name"`
	Description      string          `yaml:"description,omitempty" json:"description,omitempty"`
	Prerequisites    []string        `yaml:"prerequisites,omitempty" json:"prerequisites,omitempty"`
	BaseDifficulty   int             `yaml:"base_difficulty,omitempty" json:"base_difficulty,omitempty"`
	EstimatedMinutes int             `yaml:"estimated_minutes,omitempty" json:"estimated_minutes,omitempty"`
	Contexts         []string        `yaml:"contexts,omitempty" json:"contexts,omitempty"`
	Criteria         MasteryCriteria `yaml:"criteria,omitempty" json:"criteria,omitempty"`
	Misconceptions   []Misconception `yaml:"misconceptions,omitempty" json:"misconceptions,omitempty"`
}

// TransferEdge says mastering From makes To easier, with weight in (0,1].
type TransferEdge struct {
	From   string  `yaml:"from" json:"from"`
	To     string  `yaml:"to" json:"to"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Graph is the immutable in-memory catalog. Build it once with New and share
// it; reads are safe for concurrent use.
type Graph struct {
	concepts map[string]*Concept
	order    []string // insertion order, for stable iteration
	outgoing map[string][]TransferEdge
	incoming map[string][]TransferEdge
}

// New validates the catalog and builds the indexes. Unknown prerequisite or
// edge endpoints and prerequisite cycles are configuration errors.
func New(concepts []Concept, edges []TransferEdge) (*Graph, error) {
	g := &Graph{
		concepts: make(map[string]*Concept, len(concepts)),
		outgoing: make(map[string][]TransferEdge),
		incoming: make(map[string][]TransferEdge),
	}
	for i := range concepts {
		c := concepts[i]
		if c.ID == "" {
			return nil, fmt.Errorf("kgraph: concept %d has no id", i)
		}
		if _, dup := g.concepts[c.ID]; dup {
			return nil, fmt.Errorf("kgraph: duplicate concept id %q", c.ID)
		}
		g.concepts[c.ID] = &c
		g.order = append(g.order, c.ID)
	}
	for _, c := range g.concepts {
		for _, p := range c.Prerequisites {
			if _, ok := g.concepts[p]; !ok {
				return nil, fmt.Errorf("kgraph: concept %q requires unknown prerequisite %q", c.ID, p)
			}
		}
	}
	for _, e := range edges {
		if _, ok := g.concepts[e.From]; !ok {
			return nil, fmt.Errorf("kgraph: transfer edge from unknown concept %q", e.From)
		}
		if _, ok := g.concepts[e.To]; !ok {
			return nil, fmt.Errorf("kgraph: transfer edge to unknown concept %q", e.To)
		}
		if e.Weight <= 0 || e.Weight > 1 {
			return nil, fmt.Errorf("kgraph: transfer edge %s->%s weight %v out of (0,1]", e.From, e.To, e.Weight)
		}
		g.outgoing[e.From] = append(g.outgoing[e.From], e)
		g.incoming[e.To] = append(g.incoming[e.To], e)
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) Get(id string) (*Concept, bool) {
	c, ok := g.concepts[id]
	return c, ok
}

func (g *Graph) Len() int { return len(g.concepts) }

// All returns the concepts in catalog order.
func (g *Graph) All() []*Concept {
	out := make([]*Concept, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.concepts[id])
	}
	return out
}

func (g *Graph) Prerequisites(id string) []string {
	if c, ok := g.concepts[id]; ok {
		return c.Prerequisites
	}
	return nil
}

// TransferEdgesFrom lists edges leaving the concept.
func (g *Graph) TransferEdgesFrom(id string) []TransferEdge { return g.outgoing[id] }

// TransferEdgesTo lists edges arriving at the concept.
func (g *Graph) TransferEdgesTo(id string) []TransferEdge { return g.incoming[id] }

// PrereqsSatisfied reports whether every prerequisite is in the mastered set.
func (g *Graph) PrereqsSatisfied(id string, mastered map[string]bool) bool {
	c, ok := g.concepts[id]
	if !ok {
		return false
	}
	for _, p := range c.Prerequisites {
		if !mastered[p] {
			return false
		}
	}
	return true
}

// Unlocked lists unmastered concepts whose prerequisites are all mastered,
// in catalog order.
func (g *Graph) Unlocked(mastered map[string]bool) []*Concept {
	var out []*Concept
	for _, id := range g.order {
		if mastered[id] {
			continue
		}
		if g.PrereqsSatisfied(id, mastered) {
			out = append(out, g.concepts[id])
		}
	}
	return out
}

// TransferValue scores a candidate for selection: transfer flowing IN from
// already-mastered concepts (it will be easier to learn now) plus the
// transfer it would radiate out once mastered (it unlocks leverage).
func (g *Graph) TransferValue(id string, mastered map[string]bool) float64 {
	v := 0.0
	for _, e := range g.incoming[id] {
		if mastered[e.From] {
			v += e.Weight
		}
	}
	for _, e := range g.outgoing[id] {
		if !mastered[e.To] {
			v += 0.5 * e.Weight
		}
	}
	return v
}

// NextConcept picks the unlocked concept with the highest transfer value,
// breaking ties toward catalog order. Empty result means everything is
// mastered or locked.
func (g *Graph) NextConcept(mastered map[string]bool) (*Concept, bool) {
	unlocked := g.Unlocked(mastered)
	if len(unlocked) == 0 {
		return nil, false
	}
	best := unlocked[0]
	bestV := g.TransferValue(best.ID, mastered)
	for _, c := range unlocked[1:] {
		if v := g.TransferValue(c.ID, mastered); v > bestV {
			best, bestV = c, v
		}
	}
	return best, true
}

// PathPlan produces a full transfer-optimized study order over the
// unmastered catalog: a topological sort that greedily pulls the
// highest-transfer-value available concept at each step.
func (g *Graph) PathPlan(mastered map[string]bool) []string {
	done := make(map[string]bool, len(mastered))
	for id, ok := range mastered {
		if ok {
			done[id] = true
		}
	}
	indeg := make(map[string]int)
	for _, id := range g.order {
		if done[id] {
			continue
		}
		n := 0
		for _, p := range g.concepts[id].Prerequisites {
			if !done[p] {
				n++
			}
		}
		indeg[id] = n
	}

	pos := make(map[string]int, len(g.order))
	for i, id := range g.order {
		pos[id] = i
	}
	pq := &candidateHeap{value: func(id string) float64 { return g.TransferValue(id, done) }, pos: pos}
	for id, n := range indeg {
		if n == 0 {
			pq.items = append(pq.items, id)
		}
	}

	var plan []string
	for pq.Len() > 0 {
		// transfer values shift as done grows, so restore the heap
		// invariant before each pull; catalogs are small
		heap.Init(pq)
		id := heap.Pop(pq).(string)
		plan = append(plan, id)
		done[id] = true
		for depID, n := range indeg {
			if done[depID] || n == 0 {
				continue
			}
			for _, p := range g.concepts[depID].Prerequisites {
				if p == id {
					indeg[depID]--
					if indeg[depID] == 0 {
						pq.items = append(pq.items, depID)
					}
					break
				}
			}
		}
	}
	return plan
}

// PathStep is one planned concept with a learner-adjusted time estimate.
type PathStep struct {
	ConceptID        string  `json:"concept_id"`
	Name             string  `json:"name"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
}

// PathPlanWithEstimates annotates the study order with time estimates scaled
// by the learner's velocity (1.0 is catalog pace; faster learners get
// shorter estimates). Velocity is clamped to [0.25, 2.0].
func (g *Graph) PathPlanWithEstimates(mastered map[string]bool, velocity float64) []PathStep {
	if velocity < 0.25 {
		velocity = 0.25
	}
	if velocity > 2.0 {
		velocity = 2.0
	}
	plan := g.PathPlan(mastered)
	steps := make([]PathStep, 0, len(plan))
	for _, id := range plan {
		c := g.concepts[id]
		base := float64(c.EstimatedMinutes)
		if base <= 0 {
			base = 60
		}
		steps = append(steps, PathStep{
			ConceptID:        id,
			Name:             c.Name,
			EstimatedMinutes: base / velocity,
		})
	}
	return steps
}

func (g *Graph) checkAcyclic() error {
	indeg := make(map[string]int, len(g.concepts))
	for id := range g.concepts {
		indeg[id] = len(g.concepts[id].Prerequisites)
	}
	var queue []string
	for id, n := range indeg {
		if n == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for depID, c := range g.concepts {
			if indeg[depID] == 0 {
				continue
			}
			for _, p := range c.Prerequisites {
				if p == id {
					indeg[depID]--
					if indeg[depID] == 0 {
						queue = append(queue, depID)
					}
					break
				}
			}
		}
	}
	if visited != len(g.concepts) {
		return fmt.Errorf("kgraph: prerequisite cycle detected")
	}
	return nil
}

// candidateHeap is a max-heap on transfer value with catalog order as the
// tiebreaker, so plans are deterministic.
type candidateHeap struct {
	items []string
	value func(id string) float64
	pos   map[string]int
}

func (h *candidateHeap) Len() int { return len(h.items) }
func (h *candidateHeap) Less(i, j int) bool {
	vi, vj := h.value(h.items[i]), h.value(h.items[j])
	if vi != vj {
		return vi > vj
	}
	return h.pos[h.items[i]] < h.pos[h.items[j]]
}
func (h *candidateHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candidateHeap) Push(x any)    { h.items = append(h.items, x.(string)) }
func (h *candidateHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}
