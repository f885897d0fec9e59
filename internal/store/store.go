package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"equipment-tracker-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	ListEquipment(ctx context.Context) ([]EquipmentSnapshot, error)
	GetEquipment(ctx context.Context, id uuid.UUID) (*EquipmentSnapshot, error)
	UpdateState(ctx context.Context, id uuid.UUID, newState model.ProductionState, changedBy, notes string) (*EquipmentSnapshot, error)
	QueryHistory(ctx context.Context, filter HistoryFilter) ([]StateChangeRecord, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for collaborators that run their own
// queries (subscription handlers, notification workers).
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// ListEquipment returns snapshots of all equipment ordered by location, then name.
func (s *gormStore) ListEquipment(ctx context.Context) ([]EquipmentSnapshot, error) {
	var rows []model.Equipment
	if err := s.db.WithContext(ctx).
		Order("location ASC, name ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}

	snapshots := make([]EquipmentSnapshot, 0, len(rows))
	for i := range rows {
		snapshots = append(snapshots, *snapshotOf(&rows[i]))
	}
	return snapshots, nil
}

// GetEquipment returns the snapshot for a single equipment row.
func (s *gormStore) GetEquipment(ctx context.Context, id uuid.UUID) (*EquipmentSnapshot, error) {
	var eq model.Equipment
	if err := s.db.WithContext(ctx).First(&eq, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch equipment %s: %w", id, err)
	}
	return snapshotOf(&eq), nil
}

// UpdateState performs one transition as a single transaction: read the row,
// capture the previous state, update state/version/updated_at guarded by an
// optimistic version check, and append the matching StateChange record.
// Either both writes commit or neither does.
func (s *gormStore) UpdateState(ctx context.Context, id uuid.UUID, newState model.ProductionState, changedBy, notes string) (*EquipmentSnapshot, error) {
	var snapshot *EquipmentSnapshot

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var eq model.Equipment
		if err := tx.First(&eq, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to fetch equipment %s: %w", id, err)
		}

		// changed_at doubles as the new updated_at and must stay strictly
		// increasing per equipment so the audit chain has a total order.
		now := time.Now().UTC()
		if !now.After(eq.UpdatedAt) {
			now = eq.UpdatedAt.Add(time.Microsecond)
		}

		res := tx.Model(&model.Equipment{}).
			Where("id = ? AND version = ?", id, eq.Version).
			Updates(map[string]any{
				"current_state": newState,
				"version":       eq.Version + 1,
				"updated_at":    now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update equipment %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			// Another transition committed between our read and write.
			// Committing here would record a stale previous state.
			return ErrConflict
		}

		change := model.StateChange{
			ID:            uuid.New(),
			EquipmentID:   id,
			PreviousState: eq.CurrentState,
			NewState:      newState,
			ChangedBy:     changedBy,
			ChangedAt:     now,
			Notes:         notes,
		}
		if err := tx.Create(&change).Error; err != nil {
			return fmt.Errorf("failed to append state change for %s: %w", id, err)
		}

		eq.CurrentState = newState
		eq.UpdatedAt = now
		snapshot = snapshotOf(&eq)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// historyRow is the scan target for the history query join.
type historyRow struct {
	ID            uuid.UUID
	EquipmentID   uuid.UUID
	EquipmentName string
	PreviousState model.ProductionState
	NewState      model.ProductionState
	ChangedBy     string
	ChangedAt     time.Time
	Notes         string
}

// QueryHistory returns state changes matching the filter, most recent first.
// An empty result is not an error.
func (s *gormStore) QueryHistory(ctx context.Context, filter HistoryFilter) ([]StateChangeRecord, error) {
	q := s.db.WithContext(ctx).
		Model(&model.StateChange{}).
		Select("state_changes.id, state_changes.equipment_id, equipment.name AS equipment_name, state_changes.previous_state, state_changes.new_state, state_changes.changed_by, state_changes.changed_at, state_changes.notes").
		Joins("JOIN equipment ON equipment.id = state_changes.equipment_id")

	if filter.EquipmentID != nil {
		q = q.Where("state_changes.equipment_id = ?", *filter.EquipmentID)
	}
	if filter.From != nil {
		q = q.Where("state_changes.changed_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("state_changes.changed_at <= ?", *filter.To)
	}

	var rows []historyRow
	if err := q.Order("state_changes.changed_at DESC, state_changes.id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	records := make([]StateChangeRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, StateChangeRecord{
			ID:                   r.ID,
			EquipmentID:          r.EquipmentID,
			EquipmentName:        r.EquipmentName,
			PreviousState:        r.PreviousState,
			PreviousStateDisplay: r.PreviousState.Display(),
			NewState:             r.NewState,
			NewStateDisplay:      r.NewState.Display(),
			ChangedBy:            r.ChangedBy,
			ChangedAt:            r.ChangedAt,
			Notes:                r.Notes,
		})
	}
	return records, nil
}
