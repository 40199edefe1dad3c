package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/types"
)

type LearnerEventRepo interface {
	AppendAll(ctx context.Context, tx *gorm.DB, rows []types.LearnerEvent) error
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]types.LearnerEvent, error)
}

type learnerEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearnerEventRepo(db *gorm.DB, baseLog *logger.Logger) LearnerEventRepo {
	return &learnerEventRepo{db: db, log: baseLog.With("repo", "LearnerEventRepo")}
}

func (r *learnerEventRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *learnerEventRepo) AppendAll(ctx context.Context, tx *gorm.DB, rows []types.LearnerEvent) error {
	if len(rows) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(&rows).Error
}

func (r *learnerEventRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]types.LearnerEvent, error) {
	if sessionID == uuid.Nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []types.LearnerEvent
	err := r.conn(tx).WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
