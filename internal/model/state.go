package model

// ProductionState is the operational state of a piece of equipment.
// The integer values are part of the wire format and must not be reordered.
type ProductionState int

const (
	StateStopped       ProductionState = 0
	StateTransitioning ProductionState = 1
	StateRunning       ProductionState = 2
)

// Valid reports whether s is one of the defined states.
func (s ProductionState) Valid() bool {
	switch s {
	case StateStopped, StateTransitioning, StateRunning:
		return true
	}
	return false
}

// Display returns the human-readable label for the state.
func (s ProductionState) Display() string {
	switch s {
	case StateStopped:
		return "Standing Still"
	case StateTransitioning:
		return "Starting Up / Winding Down"
	case StateRunning:
		return "Producing Normally"
	default:
		return "Unknown"
	}
}

func (s ProductionState) String() string {
	return s.Display()
}
