package models

import (
	"time"

	"github.com/google/uuid"
)

// BundleMimeType is the content type of every packed archive artifact.
const BundleMimeType = "application/zip"

type Archive struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DownloadToken string    `gorm:"uniqueIndex"`
	// EditToken is shown to the owner exactly once at creation and never
	// serialized afterwards.
	EditToken    string  `json:"-"`
	PasswordHash *string `json:"-"`
	SizeBytes    int64
	MimeType     string `gorm:"default:'application/zip'"`

	// MaxDownloads of 0 means unlimited.
	MaxDownloads  int
	DownloadCount int
	IsActive      bool `gorm:"default:true"`

	BlobID string
	// KeyMaterial is the symmetric key and nonce for the encrypted blob,
	// stored server-side only.
	KeyMaterial []byte `json:"-"`

	ExpiresAt        *time.Time
	CreatedAt        time.Time
	LastDownloadedAt *time.Time

	Subfiles []Subfile `gorm:"foreignKey:ArchiveID" json:",omitempty"`
}

// Expired reports whether the archive has an expiry in the past.
func (a *Archive) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// LimitReached reports whether the finite download allowance is used up.
func (a *Archive) LimitReached() bool {
	return a.MaxDownloads > 0 && a.DownloadCount >= a.MaxDownloads
}

// RemainingDownloads returns the downloads left, or -1 for unlimited.
func (a *Archive) RemainingDownloads() int {
	if a.MaxDownloads <= 0 {
		return -1
	}
	remaining := a.MaxDownloads - a.DownloadCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
