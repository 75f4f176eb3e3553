package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SubjectStatusReady      = "ready"
	SubjectStatusGenerating = "generating"
	SubjectStatusFailed     = "failed"
)

type Subject struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	Status    string         `gorm:"column:status;not null;default:ready" json:"status"`
	Graph     datatypes.JSON `gorm:"column:graph;type:jsonb" json:"graph"` // GenerationResult
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Subject) TableName() string { return "subject" }
