package scheduler

import (
	"math"
	"testing"
	"time"
)

func TestScheduleBootstrapSequence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prof := DefaultProfile()
	item := NewReviewItem(prof)

	// quality band 4 corresponds to a score in [4/6, 5/6)
	score := 0.7
	if Quality(score) != 4 {
		t.Fatalf("expected quality 4 for score %v, got %d", score, Quality(score))
	}

	Schedule(&item, score, 0, prof, 1.0, now)
	if item.IntervalDays != 1.0 {
		t.Fatalf("first pass interval: got %v want 1", item.IntervalDays)
	}

	Schedule(&item, score, 0, prof, 1.0, now.Add(24*time.Hour))
	if item.IntervalDays != 6.0 {
		t.Fatalf("second pass interval: got %v want 6", item.IntervalDays)
	}

	efBefore := item.EasinessFactor
	Schedule(&item, score, 0, prof, 1.0, now.Add(7*24*time.Hour))
	// third pass: interval = 6 * EF', with EF' computed from the band-4 update
	wantEF := math.Max(prof.MinEF, efBefore+prof.CoeffA-(5-4)*(prof.CoeffB+(5-4)*prof.CoeffC))
	if math.Abs(item.EasinessFactor-wantEF) > 1e-9 {
		t.Fatalf("third pass EF: got %v want %v", item.EasinessFactor, wantEF)
	}
	if math.Abs(item.IntervalDays-6.0*wantEF) > 1e-9 {
		t.Fatalf("third pass interval: got %v want %v", item.IntervalDays, 6.0*wantEF)
	}
}

func TestScheduleConsecutivePassesGrowInterval(t *testing.T) {
	now := time.Now().UTC()
	prof := DefaultProfile()
	item := NewReviewItem(prof)

	Schedule(&item, 0.9, 0, prof, 1.0, now)
	Schedule(&item, 0.9, 0, prof, 1.0, now)
	prev := item.IntervalDays
	for i := 0; i < 5; i++ {
		Schedule(&item, 0.9, 0, prof, 1.0, now)
		if item.IntervalDays <= prev {
			t.Fatalf("pass %d: interval %v did not grow past %v", i, item.IntervalDays, prev)
		}
		prev = item.IntervalDays
	}
}

func TestScheduleFailureResetsIntervalNotEasiness(t *testing.T) {
	now := time.Now().UTC()
	prof := DefaultProfile()
	item := NewReviewItem(prof)

	for i := 0; i < 4; i++ {
		Schedule(&item, 1.0, 0, prof, 1.0, now)
	}
	if item.IntervalDays <= 6 {
		t.Fatalf("setup: expected a long interval, got %v", item.IntervalDays)
	}
	efBefore := item.EasinessFactor

	Schedule(&item, 0.2, 0, prof, 1.0, now)
	if item.IntervalDays != prof.ResetIntervalDays {
		t.Fatalf("failed review interval: got %v want %v", item.IntervalDays, prof.ResetIntervalDays)
	}
	if item.RepetitionCount != 0 {
		t.Fatalf("failed review should reset repetitions, got %d", item.RepetitionCount)
	}
	if item.EasinessFactor != efBefore {
		t.Fatalf("failure must not change easiness: got %v want %v", item.EasinessFactor, efBefore)
	}
}

func TestEasinessFloor(t *testing.T) {
	now := time.Now().UTC()
	prof := DefaultProfile()
	item := NewReviewItem(prof)

	// barely-passing reviews (quality 3) drag EF down but never below MinEF
	for i := 0; i < 30; i++ {
		Schedule(&item, 0.55, 0, prof, 1.0, now)
	}
	if item.EasinessFactor < prof.MinEF {
		t.Fatalf("easiness below floor: %v < %v", item.EasinessFactor, prof.MinEF)
	}
}

func TestEasinessStaysWithinBounds(t *testing.T) {
	now := time.Now().UTC()
	for _, prof := range Profiles {
		if prof.MinEF < EasinessMin {
			t.Fatalf("profile %s declares MinEF %v below %v", prof.Name, prof.MinEF, EasinessMin)
		}
		item := NewReviewItem(prof)
		// grind quality 3 downward, then perfect recalls upward
		for i := 0; i < 40; i++ {
			Schedule(&item, 0.55, 0, prof, 1.0, now)
			if item.EasinessFactor < EasinessMin {
				t.Fatalf("profile %s: easiness %v fell below %v", prof.Name, item.EasinessFactor, EasinessMin)
			}
		}
		for i := 0; i < 40; i++ {
			Schedule(&item, 1.0, 0, prof, 1.0, now)
			if item.EasinessFactor > EasinessMax {
				t.Fatalf("profile %s: easiness %v grew past %v", prof.Name, item.EasinessFactor, EasinessMax)
			}
		}
	}
}

func TestFailedReviewAlwaysResetsToOneDay(t *testing.T) {
	now := time.Now().UTC()
	for _, prof := range Profiles {
		item := NewReviewItem(prof)
		for i := 0; i < 5; i++ {
			Schedule(&item, 0.95, 0, prof, 1.0, now)
		}
		// misconceptions must not shave the failure reset either
		Schedule(&item, 0.2, 3, prof, 2.0, now)
		if item.IntervalDays != 1.0 {
			t.Fatalf("profile %s: failed review interval got %v want 1", prof.Name, item.IntervalDays)
		}
		if item.RepetitionCount != 0 {
			t.Fatalf("profile %s: repetitions not reset, got %d", prof.Name, item.RepetitionCount)
		}
		next := now.Add(24 * time.Hour)
		if item.NextReviewAt == nil || !item.NextReviewAt.Equal(next) {
			t.Fatalf("profile %s: next review at %v want %v", prof.Name, item.NextReviewAt, next)
		}
	}
}

func TestIntervalFactorClamp(t *testing.T) {
	if got := ClampIntervalFactor(0.1); got != 0.5 {
		t.Fatalf("low clamp: got %v", got)
	}
	if got := ClampIntervalFactor(3.5); got != 2.0 {
		t.Fatalf("high clamp: got %v", got)
	}
	if got := ClampIntervalFactor(1.2); got != 1.2 {
		t.Fatalf("identity: got %v", got)
	}
}

func TestRetentionDecays(t *testing.T) {
	now := time.Now().UTC()
	prof := DefaultProfile()
	item := NewReviewItem(prof)
	Schedule(&item, 0.9, 0, prof, 1.0, now)

	r0 := Retention(item, now)
	r7 := Retention(item, now.Add(7*24*time.Hour))
	if r0 < 0.99 {
		t.Fatalf("retention just after review should be ~1, got %v", r0)
	}
	if r7 >= r0 {
		t.Fatalf("retention should decay: %v -> %v", r0, r7)
	}
}

func TestDueQueueOrdering(t *testing.T) {
	now := time.Now().UTC()
	past := func(days float64, interval float64) ReviewItem {
		at := now.Add(-time.Duration(days * 24 * float64(time.Hour)))
		return ReviewItem{IntervalDays: interval, EasinessFactor: 2.5, NextReviewAt: &at}
	}
	future := now.Add(48 * time.Hour)

	items := map[string]ReviewItem{
		"a": past(1, 10), // urgency 0.1
		"b": past(3, 1),  // urgency 3
		"c": {IntervalDays: 1, EasinessFactor: 2.5, NextReviewAt: &future},
	}
	due := DueQueue(items, now, 0)
	if len(due) != 2 {
		t.Fatalf("expected 2 due items, got %d", len(due))
	}
	if due[0].ConceptID != "b" || due[1].ConceptID != "a" {
		t.Fatalf("wrong urgency order: %v", due)
	}
}
