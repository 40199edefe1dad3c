package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/types"
)

type LearnerTokenRepo interface {
	Create(ctx context.Context, tx *gorm.DB, token *types.LearnerToken) error
	GetByHash(ctx context.Context, tx *gorm.DB, hash string) (*types.LearnerToken, error)
	RevokeAllForLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error
}

type learnerTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearnerTokenRepo(db *gorm.DB, baseLog *logger.Logger) LearnerTokenRepo {
	return &learnerTokenRepo{db: db, log: baseLog.With("repo", "LearnerTokenRepo")}
}

func (r *learnerTokenRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *learnerTokenRepo) Create(ctx context.Context, tx *gorm.DB, token *types.LearnerToken) error {
	return r.conn(tx).WithContext(ctx).Create(token).Error
}

func (r *learnerTokenRepo) GetByHash(ctx context.Context, tx *gorm.DB, hash string) (*types.LearnerToken, error) {
	if hash == "" {
		return nil, nil
	}
	var row types.LearnerToken
	err := r.conn(tx).WithContext(ctx).
		Where("token_hash = ? AND revoked = false AND expires_at > ?", hash, time.Now().UTC()).
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

func (r *learnerTokenRepo) RevokeAllForLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error {
	if learnerID == uuid.Nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).
		Model(&types.LearnerToken{}).
		Where("learner_id = ? AND revoked = false", learnerID).
		Update("revoked", true).Error
}
