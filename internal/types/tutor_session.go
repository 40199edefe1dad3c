package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TutorSession mirrors the live session state machine. Active is broken out
// so the conflict check is one indexed lookup.
type TutorSession struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"learner_id"`

	Phase     string         `gorm:"not null" json:"phase"`
	ConceptID string         `json:"concept_id"`
	Active    bool           `gorm:"not null;default:true;index" json:"active"`
	State     datatypes.JSON `gorm:"type:jsonb;not null" json:"state"`

	StartedAt time.Time `gorm:"not null" json:"started_at"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (TutorSession) TableName() string { return "tutor_sessions" }

// LearnerEvent is the append-only audit trail of turn events.
type LearnerEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID uuid.UUID      `gorm:"type:uuid;not null;index" json:"learner_id"`
	SessionID uuid.UUID      `gorm:"type:uuid;index" json:"session_id"`
	Type      string         `gorm:"not null;index" json:"type"`
	Payload   datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	At        time.Time      `gorm:"not null;index" json:"at"`
}

func (LearnerEvent) TableName() string { return "learner_events" }
