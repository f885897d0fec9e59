// Package engine holds the transition engine: validation, the atomic
// store write, and the publish step that keeps observers in sync.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"equipment-tracker-backend/internal/hub"
	"equipment-tracker-backend/internal/model"
	"equipment-tracker-backend/internal/store"
)

// ErrValidation is returned for malformed input, before any store access.
var ErrValidation = errors.New("validation failed")

// Publisher fans a committed state change out to live observers.
type Publisher interface {
	Broadcast(topic, event string, payload any)
}

// Dispatcher queues follow-up push notification work for an equipment.
type Dispatcher interface {
	Dispatch(equipmentID uuid.UUID)
}

// Service is the operation surface exposed to the transport layer.
type Service interface {
	ListEquipment(ctx context.Context) ([]store.EquipmentSnapshot, error)
	GetEquipment(ctx context.Context, id uuid.UUID) (*store.EquipmentSnapshot, error)
	UpdateState(ctx context.Context, id uuid.UUID, newState model.ProductionState, changedBy, notes string) (*store.EquipmentSnapshot, error)
	GetHistory(ctx context.Context, filter store.HistoryFilter) ([]store.StateChangeRecord, error)
}

type engine struct {
	store      store.Store
	publisher  Publisher
	dispatcher Dispatcher
}

// New creates the engine. The dispatcher may be nil when web push is not
// configured.
func New(s store.Store, p Publisher, d Dispatcher) Service {
	return &engine{store: s, publisher: p, dispatcher: d}
}

// ListEquipment returns all equipment ordered by (location, name).
func (e *engine) ListEquipment(ctx context.Context) ([]store.EquipmentSnapshot, error) {
	return e.store.ListEquipment(ctx)
}

// GetEquipment returns a single snapshot or store.ErrNotFound.
func (e *engine) GetEquipment(ctx context.Context, id uuid.UUID) (*store.EquipmentSnapshot, error) {
	return e.store.GetEquipment(ctx, id)
}

// UpdateState validates the request, commits the transition plus its audit
// record atomically, and then broadcasts the fresh snapshot to observers.
// The broadcast happens after the commit and before returning, so a single
// observer sees one equipment's events in commit order. Observer-side
// failures never surface here.
func (e *engine) UpdateState(ctx context.Context, id uuid.UUID, newState model.ProductionState, changedBy, notes string) (*store.EquipmentSnapshot, error) {
	if strings.TrimSpace(changedBy) == "" {
		return nil, fmt.Errorf("%w: changedBy must not be empty", ErrValidation)
	}
	if !newState.Valid() {
		return nil, fmt.Errorf("%w: unknown production state %d", ErrValidation, newState)
	}

	snapshot, err := e.store.UpdateState(ctx, id, newState, changedBy, notes)
	if err != nil {
		return nil, err
	}

	e.publisher.Broadcast(hub.TopicEquipmentUpdates, hub.EventStateChanged, snapshot)
	if e.dispatcher != nil {
		e.dispatcher.Dispatch(id)
	}
	return snapshot, nil
}

// GetHistory returns audit records matching the filter, most recent first.
func (e *engine) GetHistory(ctx context.Context, filter store.HistoryFilter) ([]store.StateChangeRecord, error) {
	return e.store.QueryHistory(ctx, filter)
}
