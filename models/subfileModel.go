package models

import (
	"time"

	"github.com/google/uuid"
)

// Subfile is one member of a packed archive, tracked on its own row so it can
// be listed, extracted and deleted individually.
type Subfile struct {
	FileToken string    `gorm:"primaryKey" json:"fileToken"`
	ArchiveID uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_archive_path,priority:1" json:"-"`
	Name      string    `json:"name"`
	// Path is the slash-delimited relative path inside the bundle, unique
	// per archive.
	Path         string     `gorm:"uniqueIndex:idx_archive_path,priority:2" json:"path"`
	SizeBytes    int64      `json:"sizeBytes"`
	MimeType     string     `json:"mimeType"`
	Extracted    bool       `gorm:"default:false" json:"extracted"`
	DownloadedAt *time.Time `json:"downloadedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
