package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/types"
)

type TutorSessionRepo interface {
	GetActive(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (*types.TutorSession, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.TutorSession) error
}

type tutorSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTutorSessionRepo(db *gorm.DB, baseLog *logger.Logger) TutorSessionRepo {
	return &tutorSessionRepo{db: db, log: baseLog.With("repo", "TutorSessionRepo")}
}

func (r *tutorSessionRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *tutorSessionRepo) GetActive(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (*types.TutorSession, error) {
	if learnerID == uuid.Nil {
		return nil, nil
	}
	var row types.TutorSession
	err := r.conn(tx).WithContext(ctx).
		Where("learner_id = ? AND active = true", learnerID).
		Order("started_at DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *tutorSessionRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.TutorSession) error {
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"phase", "concept_id", "active", "state", "updated_at",
			}),
		}).
		Create(row).Error
}
