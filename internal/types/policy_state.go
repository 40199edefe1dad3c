package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PolicyState is the per-learner serialized RL engine: every bandit table
// and the Q-table in one blob, one row per learner. Learners never share
// policy state.
type PolicyState struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"learner_id"`

	State            datatypes.JSON `gorm:"type:jsonb;not null" json:"state"`
	ConceptsMastered int            `gorm:"not null;default:0" json:"concepts_mastered"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PolicyState) TableName() string { return "policy_states" }
