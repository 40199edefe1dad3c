package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LearnerConceptRecord is the persisted form of one (learner, concept)
// mastery aggregate. Hot columns are broken out for querying; the full
// aggregate lives in the State blob.
type LearnerConceptRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;index:idx_learner_concept,unique,priority:1" json:"learner_id"`
	ConceptID string    `gorm:"not null;index:idx_learner_concept,unique,priority:2" json:"concept_id"`

	Status       string  `gorm:"not null;default:'unseen';index" json:"status"`
	MasteryScore float64 `gorm:"not null;default:0" json:"mastery_score"`

	// State holds the full mastery aggregate: tests, calibration history,
	// misconceptions, strategy stats and the review item.
	State datatypes.JSON `gorm:"type:jsonb;not null" json:"state"`

	NextReviewAt *time.Time `gorm:"index" json:"next_review_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LearnerConceptRecord) TableName() string { return "learner_concept_records" }
