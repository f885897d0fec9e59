package model

import (
	"time"

	"github.com/google/uuid"
)

// Equipment represents a piece of physical equipment on the factory floor.
type Equipment struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name         string          `gorm:"size:100;not null"`
	Location     string          `gorm:"size:100;not null"`
	CurrentState ProductionState `gorm:"not null;default:0"`
	// Version is bumped on every successful transition and guards
	// against lost updates from concurrent writers.
	Version   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	StateChanges []StateChange `gorm:"foreignKey:EquipmentID"`
}

// TableName overrides gorm's pluralization; "equipment" is its own plural.
func (Equipment) TableName() string {
	return "equipment"
}
