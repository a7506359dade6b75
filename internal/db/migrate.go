package db

import (
	"fmt"
	"log"

	"github.com/zulandar/plotcraft/internal/config"
	"github.com/zulandar/plotcraft/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model the session store persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.StorySession{},
		&models.SessionDraft{},
		&models.SessionMessage{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Prepare creates the MySQL database when needed, connects and migrates.
// SQLite files are created on open.
func Prepare(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Driver == "mysql" {
		admin, err := ConnectAdmin(cfg)
		if err != nil {
			return nil, err
		}
		err = CreateDatabase(admin, cfg.Name)
		if sqlDB, dbErr := admin.DB(); dbErr == nil {
			sqlDB.Close()
		}
		if err != nil {
			return nil, err
		}
	}
	gdb, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(gdb); err != nil {
		return nil, err
	}
	log.Printf("db: %s schema ready", cfg.Driver)
	return gdb, nil
}
