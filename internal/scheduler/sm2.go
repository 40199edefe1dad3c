// Package scheduler implements the SM-2 derived spaced-repetition math.
// Pure computation, no storage and no LLM calls; the RL engine picks which
// parameter profile and interval factor to feed it.
package scheduler

import (
	"math"
	"sort"
	"time"
)

// Profile is one SM-2 parameter set the SchedulerBandit can choose.
type Profile struct {
	Name              string
	InitEF            float64
	MinEF             float64
	CoeffA            float64
	CoeffB            float64
	CoeffC            float64
	MisconPenalty     float64
	ResetIntervalDays float64
}

// Profiles is the catalog the SchedulerBandit selects over. Index 0 is the
// classical SM-2 parameterization and the default.
var Profiles = []Profile{
	{Name: "standard", InitEF: 2.5, MinEF: 1.3, CoeffA: 0.1, CoeffB: 0.08, CoeffC: 0.02, MisconPenalty: 0.15, ResetIntervalDays: 1.0},
	{Name: "aggressive", InitEF: 2.3, MinEF: 1.3, CoeffA: 0.12, CoeffB: 0.10, CoeffC: 0.03, MisconPenalty: 0.20, ResetIntervalDays: 0.5},
	{Name: "gentle", InitEF: 2.7, MinEF: 1.4, CoeffA: 0.08, CoeffB: 0.06, CoeffC: 0.01, MisconPenalty: 0.10, ResetIntervalDays: 1.5},
	{Name: "strict_miscon", InitEF: 2.5, MinEF: 1.3, CoeffA: 0.1, CoeffB: 0.08, CoeffC: 0.02, MisconPenalty: 0.25, ResetIntervalDays: 1.0},
	{Name: "moderate", InitEF: 2.4, MinEF: 1.3, CoeffA: 0.11, CoeffB: 0.09, CoeffC: 0.025, MisconPenalty: 0.15, ResetIntervalDays: 0.75},
}

// Easiness is bounded to [1.3, 5.0] whatever the active profile says, and a
// failed review always resets the interval to exactly one day. Profiles only
// vary the success-side bootstrap base.
const (
	EasinessMin   = 1.3
	EasinessMax   = 5.0
	failResetDays = 1.0
)

func DefaultProfile() Profile { return Profiles[0] }

func ProfileAt(idx int) Profile {
	if idx < 0 || idx >= len(Profiles) {
		return DefaultProfile()
	}
	return Profiles[idx]
}

// ReviewItem is the per-concept scheduling state embedded in a learner's
// concept record.
type ReviewItem struct {
	EasinessFactor  float64    `json:"easiness_factor"`
	RepetitionCount int        `json:"repetition_count"`
	IntervalDays    float64    `json:"interval_days"`
	LastScore       float64    `json:"last_score"`
	LastReviewedAt  *time.Time `json:"last_reviewed_at,omitempty"`
	NextReviewAt    *time.Time `json:"next_review_at,omitempty"`

	// ProfileArm/ProfileCtx remember which scheduler profile produced the
	// current due date, so its bandit is credited with whether the material
	// actually survived the interval, not with the score that set it.
	ProfileArm int    `json:"profile_arm,omitempty"`
	ProfileCtx string `json:"profile_ctx,omitempty"`
}

func NewReviewItem(prof Profile) ReviewItem {
	return ReviewItem{EasinessFactor: prof.InitEF, IntervalDays: prof.ResetIntervalDays}
}

// Quality buckets a [0,1] score into the six SM-2 quality bands 0..5.
func Quality(score float64) int {
	q := int(math.Floor(score * 6.0))
	if q > 5 {
		q = 5
	}
	if q < 0 {
		q = 0
	}
	return q
}

// ClampIntervalFactor bounds the RL-learned interval multiplier.
func ClampIntervalFactor(f float64) float64 {
	if f < 0.5 {
		return 0.5
	}
	if f > 2.0 {
		return 2.0
	}
	return f
}

// Schedule applies one review outcome to the item and computes the next due
// date. intervalFactor is the personalized multiplier chosen by the
// SchedulerBandit, applied before the SM-2 growth. Quality >= 3 counts as
// a successful recall; a failure resets the interval to one day but
// deliberately leaves the easiness factor alone (classical SM-2 choice).
func Schedule(item *ReviewItem, score float64, misconCount int, prof Profile, intervalFactor float64, now time.Time) {
	if item.EasinessFactor == 0 {
		item.EasinessFactor = prof.InitEF
	}
	factor := ClampIntervalFactor(intervalFactor)
	quality := float64(Quality(score))
	item.LastScore = score

	if quality >= 3 {
		floor := math.Max(prof.MinEF, EasinessMin)
		ef := item.EasinessFactor + prof.CoeffA - (5-quality)*(prof.CoeffB+(5-quality)*prof.CoeffC)
		item.EasinessFactor = math.Min(EasinessMax, math.Max(floor, ef))
		switch item.RepetitionCount {
		case 0:
			item.IntervalDays = prof.ResetIntervalDays * factor
		case 1:
			item.IntervalDays = prof.ResetIntervalDays * 6.0 * factor
		default:
			item.IntervalDays = item.IntervalDays * item.EasinessFactor * factor
		}
		item.RepetitionCount++
		if misconCount > 0 {
			penalized := item.IntervalDays * (1.0 - prof.MisconPenalty*math.Min(float64(misconCount), 3))
			if penalized > 0 {
				item.IntervalDays = penalized
			}
		}
		if item.IntervalDays <= 0 {
			item.IntervalDays = prof.ResetIntervalDays
		}
	} else {
		item.IntervalDays = failResetDays
		item.RepetitionCount = 0
	}

	reviewed := now
	next := now.Add(time.Duration(item.IntervalDays * 24 * float64(time.Hour)))
	item.LastReviewedAt = &reviewed
	item.NextReviewAt = &next
}

// Retention estimates recall probability R = e^(-t/S), with stability
// S = interval * easiness as a proxy.
func Retention(item ReviewItem, now time.Time) float64 {
	if item.LastReviewedAt == nil {
		return 0
	}
	stability := item.IntervalDays * item.EasinessFactor
	if stability < 0.1 {
		stability = 0.1
	}
	days := now.Sub(*item.LastReviewedAt).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / stability)
}

// DueReview is one entry of the due-for-review queue, most urgent first.
type DueReview struct {
	ConceptID   string  `json:"concept_id"`
	OverdueDays float64 `json:"overdue_days"`
	Urgency     float64 `json:"urgency"`
	LastScore   float64 `json:"last_score"`
}

// DueQueue filters items due at or before now and orders them by urgency,
// overdue time normalized by the item's interval.
func DueQueue(items map[string]ReviewItem, now time.Time, limit int) []DueReview {
	var due []DueReview
	for cid, item := range items {
		if item.NextReviewAt == nil || item.NextReviewAt.After(now) {
			continue
		}
		overdue := now.Sub(*item.NextReviewAt).Hours() / 24.0
		interval := math.Max(item.IntervalDays, 1.0)
		due = append(due, DueReview{
			ConceptID:   cid,
			OverdueDays: overdue,
			Urgency:     overdue / interval,
			LastScore:   item.LastScore,
		})
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Urgency != due[j].Urgency {
			return due[i].Urgency > due[j].Urgency
		}
		return due[i].ConceptID < due[j].ConceptID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due
}
