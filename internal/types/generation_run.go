package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	GenerationRunStatusRunning   = "running"
	GenerationRunStatusDone      = "done"
	GenerationRunStatusFailed    = "failed"
	GenerationRunStatusCancelled = "cancelled"
)

// GenerationRun records one graph generation attempt for observability.
// Pipelines write stage/progress into it as they go; nothing reads it back
// to make decisions.
type GenerationRun struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SubjectID uuid.UUID      `gorm:"type:uuid;not null;index" json:"subject_id"`
	Subject   *Subject       `gorm:"constraint:OnDelete:CASCADE;foreignKey:SubjectID;references:ID" json:"subject,omitempty"`
	Status    string         `gorm:"column:status;not null" json:"status"`
	Stage     string         `gorm:"column:stage" json:"stage"`
	Progress  int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Error     string         `gorm:"column:error" json:"error,omitempty"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (GenerationRun) TableName() string { return "generation_run" }
