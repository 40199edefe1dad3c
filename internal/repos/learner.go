package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/types"
)

type LearnerRepo interface {
	Create(ctx context.Context, tx *gorm.DB, learner *types.Learner) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Learner, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.Learner, error)
}

type learnerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearnerRepo(db *gorm.DB, baseLog *logger.Logger) LearnerRepo {
	return &learnerRepo{db: db, log: baseLog.With("repo", "LearnerRepo")}
}

func (r *learnerRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *learnerRepo) Create(ctx context.Context, tx *gorm.DB, learner *types.Learner) error {
	return r.conn(tx).WithContext(ctx).Create(learner).Error
}

func (r *learnerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Learner, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Learner
	err := r.conn(tx).WithContext(ctx).
		Where("id = ?", id).
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

func (r *learnerRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.Learner, error) {
	if email == "" {
		return nil, nil
	}
	var row types.Learner
	err := r.conn(tx).WithContext(ctx).
		Where("email = ?", email).
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
