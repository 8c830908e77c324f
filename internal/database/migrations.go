package database

import (
	"fmt"

	"gorm.io/gorm"

	"landmatch/server/internal/models"
)

// MigrateSchema creates or updates every table the service owns
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.LandConditions{},
		&models.LandProperty{},
		&models.StoredMatch{},
		&models.TelegramConfig{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (d *Database) RunMigrations() error {
	return MigrateSchema(d.db)
}
