// models/download_event.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type DownloadEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ArchiveID uuid.UUID
	Archive   Archive `gorm:"foreignKey:ArchiveID"`
	// FileToken is set when a single member was extracted rather than the
	// whole bundle downloaded.
	FileToken string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}
