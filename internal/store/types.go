package store

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"equipment-tracker-backend/internal/model"
)

// ErrNotFound is returned when the referenced equipment does not exist.
var ErrNotFound = errors.New("equipment not found")

// ErrConflict is returned when a concurrent transition won the race for the
// same equipment row. Callers may retry with freshly read state; the store
// never overwrites using a stale previous state.
var ErrConflict = errors.New("concurrent state change detected")

// EquipmentSnapshot is a point-in-time projection of an equipment row.
// It is also the wire shape of hub events, so observers can patch their
// local view without a refetch.
type EquipmentSnapshot struct {
	ID                  uuid.UUID             `json:"equipmentId"`
	Name                string                `json:"name"`
	Location            string                `json:"location"`
	CurrentState        model.ProductionState `json:"currentState"`
	CurrentStateDisplay string                `json:"currentStateDisplay"`
	UpdatedAt           time.Time             `json:"updatedAt"`
}

// StateChangeRecord is a history entry with the equipment name denormalized in.
type StateChangeRecord struct {
	ID                   uuid.UUID             `json:"id"`
	EquipmentID          uuid.UUID             `json:"equipmentId"`
	EquipmentName        string                `json:"equipmentName"`
	PreviousState        model.ProductionState `json:"previousState"`
	PreviousStateDisplay string                `json:"previousStateDisplay"`
	NewState             model.ProductionState `json:"newState"`
	NewStateDisplay      string                `json:"newStateDisplay"`
	ChangedBy            string                `json:"changedBy"`
	ChangedAt            time.Time             `json:"changedAt"`
	Notes                string                `json:"notes,omitempty"`
}

// HistoryFilter restricts a history query. All fields are optional and
// combine with logical AND; time bounds are inclusive.
type HistoryFilter struct {
	EquipmentID *uuid.UUID
	From        *time.Time
	To          *time.Time
}

func snapshotOf(eq *model.Equipment) *EquipmentSnapshot {
	return &EquipmentSnapshot{
		ID:                  eq.ID,
		Name:                eq.Name,
		Location:            eq.Location,
		CurrentState:        eq.CurrentState,
		CurrentStateDisplay: eq.CurrentState.Display(),
		UpdatedAt:           eq.UpdatedAt,
	}
}
