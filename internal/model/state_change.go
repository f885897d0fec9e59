package model

import (
	"time"

	"github.com/google/uuid"
)

// StateChange is one immutable audit record of an equipment transition.
// Records are only ever inserted, one per successful transition.
type StateChange struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	EquipmentID   uuid.UUID       `gorm:"type:uuid;index;not null"`
	PreviousState ProductionState `gorm:"not null"`
	NewState      ProductionState `gorm:"not null"`
	ChangedBy     string          `gorm:"size:100;not null"`
	ChangedAt     time.Time       `gorm:"index;not null"`
	Notes         string

	// Associations
	Equipment Equipment `gorm:"constraint:OnDelete:CASCADE"`
}
