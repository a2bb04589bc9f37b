package db

import (
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.CallRecord{},
		&models.StationEvent{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(gormDB *gorm.DB) error {
	if err := gormDB.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
