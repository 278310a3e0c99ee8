package initializers

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/basit/packshare-backend/models"
)

// ConnectToDatabase opens the postgres metadata store and migrates the
// schema. The handle is returned to the caller; no package-level state.
func ConnectToDatabase(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DB_URL is not set in environment variables")
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Archive{},
		&models.Subfile{},
		&models.DownloadEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return db, nil
}
