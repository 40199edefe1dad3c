package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/mastery"
	"github.com/yungbote/masteryloop-backend/internal/orchestrator"
	"github.com/yungbote/masteryloop-backend/internal/repos"
	"github.com/yungbote/masteryloop-backend/internal/rl"
	"github.com/yungbote/masteryloop-backend/internal/types"
)

// TutorStore backs the orchestrator with postgres. Snapshots are hydrated
// from jsonb blobs; SaveTurn writes the whole mutated snapshot plus the
// turn's events in one transaction.
type TutorStore struct {
	db       *gorm.DB
	records  repos.ConceptRecordRepo
	policies repos.PolicyStateRepo
	sessions repos.TutorSessionRepo
	events   repos.LearnerEventRepo
	log      *logger.Logger
}

func NewTutorStore(
	db *gorm.DB,
	records repos.ConceptRecordRepo,
	policies repos.PolicyStateRepo,
	sessions repos.TutorSessionRepo,
	events repos.LearnerEventRepo,
	baseLog *logger.Logger,
) *TutorStore {
	return &TutorStore{
		db:       db,
		records:  records,
		policies: policies,
		sessions: sessions,
		events:   events,
		log:      baseLog.With("service", "TutorStore"),
	}
}

func (s *TutorStore) LoadSnapshot(ctx context.Context, learnerID uuid.UUID) (*orchestrator.LearnerSnapshot, error) {
	rows, err := s.records.ListByLearner(ctx, nil, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load concept records: %w", err)
	}
	recs := make(map[string]*mastery.ConceptRecord, len(rows))
	for i := range rows {
		var rec mastery.ConceptRecord
		if err := json.Unmarshal(rows[i].State, &rec); err != nil {
			return nil, fmt.Errorf("decode concept record %s: %w", rows[i].ConceptID, err)
		}
		recs[rec.ConceptID] = &rec
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	policyRow, err := s.policies.Get(ctx, nil, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load policy state: %w", err)
	}
	var engine *rl.Engine
	if policyRow == nil {
		engine = rl.NewEngine(rng)
	} else {
		engine, err = rl.Unmarshal(policyRow.State, rng)
		if err != nil {
			return nil, fmt.Errorf("decode policy state: %w", err)
		}
	}

	sessRow, err := s.sessions.GetActive(ctx, nil, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess *orchestrator.Session
	if sessRow != nil {
		sess = &orchestrator.Session{}
		if err := json.Unmarshal(sessRow.State, sess); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", sessRow.ID, err)
		}
	}

	return &orchestrator.LearnerSnapshot{
		LearnerID: learnerID,
		Records:   recs,
		Policy:    engine,
		Session:   sess,
	}, nil
}

func (s *TutorStore) SaveTurn(ctx context.Context, snap *orchestrator.LearnerSnapshot, events []orchestrator.Event) error {
	recordRows := make([]types.LearnerConceptRecord, 0, len(snap.Records))
	for _, rec := range snap.Records {
		blob, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode concept record %s: %w", rec.ConceptID, err)
		}
		recordRows = append(recordRows, types.LearnerConceptRecord{
			LearnerID:    snap.LearnerID,
			ConceptID:    rec.ConceptID,
			Status:       string(rec.Status),
			MasteryScore: rec.Score,
			State:        datatypes.JSON(blob),
			NextReviewAt: rec.Review.NextReviewAt,
		})
	}

	policyBlob, err := snap.Policy.Marshal()
	if err != nil {
		return fmt.Errorf("encode policy state: %w", err)
	}
	policyRow := &types.PolicyState{
		LearnerID:        snap.LearnerID,
		State:            datatypes.JSON(policyBlob),
		ConceptsMastered: snap.Policy.ConceptsMastered,
	}

	var sessRow *types.TutorSession
	if snap.Session != nil {
		blob, err := json.Marshal(snap.Session)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", snap.Session.ID, err)
		}
		sessRow = &types.TutorSession{
			ID:        snap.Session.ID,
			LearnerID: snap.LearnerID,
			Phase:     string(snap.Session.Phase),
			ConceptID: snap.Session.ConceptID,
			Active:    snap.Session.Active(),
			State:     datatypes.JSON(blob),
			StartedAt: snap.Session.StartedAt,
		}
	}

	eventRows := make([]types.LearnerEvent, 0, len(events))
	for _, ev := range events {
		var payload datatypes.JSON
		if len(ev.Payload) > 0 {
			blob, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("encode event payload: %w", err)
			}
			payload = datatypes.JSON(blob)
		}
		eventRows = append(eventRows, types.LearnerEvent{
			LearnerID: snap.LearnerID,
			SessionID: ev.SessionID,
			Type:      ev.Type,
			Payload:   payload,
			At:        ev.At,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.records.UpsertAll(ctx, tx, recordRows); err != nil {
			return fmt.Errorf("save concept records: %w", err)
		}
		if err := s.policies.Upsert(ctx, tx, policyRow); err != nil {
			return fmt.Errorf("save policy state: %w", err)
		}
		if sessRow != nil {
			if err := s.sessions.Upsert(ctx, tx, sessRow); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
		}
		if err := s.events.AppendAll(ctx, tx, eventRows); err != nil {
			return fmt.Errorf("append events: %w", err)
		}
		return nil
	})
}
