package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/types"
)

type PolicyStateRepo interface {
	Get(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (*types.PolicyState, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.PolicyState) error
}

type policyStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPolicyStateRepo(db *gorm.DB, baseLog *logger.Logger) PolicyStateRepo {
	return &policyStateRepo{db: db, log: baseLog.With("repo", "PolicyStateRepo")}
}

func (r *policyStateRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *policyStateRepo) Get(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (*types.PolicyState, error) {
	if learnerID == uuid.Nil {
		return nil, nil
	}
	var row types.PolicyState
	err := r.conn(tx).WithContext(ctx).
		Where("learner_id = ?", learnerID).
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

func (r *policyStateRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.PolicyState) error {
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "learner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "concepts_mastered", "updated_at",
			}),
		}).
		Create(row).Error
}
