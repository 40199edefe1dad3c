package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/types"
)

type ConceptRecordRepo interface {
	ListByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]types.LearnerConceptRecord, error)
	UpsertAll(ctx context.Context, tx *gorm.DB, rows []types.LearnerConceptRecord) error
}

type conceptRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptRecordRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRecordRepo {
	return &conceptRecordRepo{db: db, log: baseLog.With("repo", "ConceptRecordRepo")}
}

func (r *conceptRecordRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *conceptRecordRepo) ListByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]types.LearnerConceptRecord, error) {
	if learnerID == uuid.Nil {
		return nil, nil
	}
	var rows []types.LearnerConceptRecord
	err := r.conn(tx).WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *conceptRecordRepo) UpsertAll(ctx context.Context, tx *gorm.DB, rows []types.LearnerConceptRecord) error {
	if len(rows) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "learner_id"}, {Name: "concept_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "mastery_score", "state", "next_review_at", "updated_at",
			}),
		}).
		Create(&rows).Error
}
