package db

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"equipment-tracker-backend/config"
	"equipment-tracker-backend/internal/model"
)

// Init initializes the database connection, runs migrations and seeds
// the reference equipment rows when the table is empty.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := Seed(db); err != nil {
		return nil, fmt.Errorf("seeding failed: %w", err)
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate runs the schema migrations and applies the history indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Equipment{},
		&model.StateChange{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if err := applyHistoryIndexes(db); err != nil {
		log.Printf("Warning: failed to apply history indexes: %v. Continuing without them.", err)
	}
	return nil
}

// applyHistoryIndexes creates the composite index the history query leans on.
// AutoMigrate only creates the single-column indexes declared on the model.
func applyHistoryIndexes(db *gorm.DB) error {
	ddls := []string{
		"CREATE INDEX IF NOT EXISTS idx_state_changes_equipment_changed_at ON state_changes (equipment_id, changed_at DESC)",
	}
	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}

// Seed inserts the initial equipment rows if none exist yet.
// Equipment provisioning has no API surface, so a fresh database
// starts with these three machines.
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Equipment{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	seed := []model.Equipment{
		{
			ID:           uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			Name:         "Molding Machine A1",
			Location:     "Hall 1 - Section A",
			CurrentState: model.StateRunning,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			ID:           uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			Name:         "Molding Machine A2",
			Location:     "Hall 1 - Section A",
			CurrentState: model.StateTransitioning,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			ID:           uuid.MustParse("33333333-3333-3333-3333-333333333333"),
			Name:         "Packaging Line B1",
			Location:     "Hall 2 - Section B",
			CurrentState: model.StateStopped,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}

	log.Printf("Seeding %d equipment rows...", len(seed))
	return db.Create(&seed).Error
}
