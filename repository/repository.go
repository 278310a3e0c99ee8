// Package repository defines the metadata-store interfaces and their gorm and
// in-memory implementations. Components receive a Store; nothing talks to the
// database directly.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/basit/packshare-backend/models"
)

// ErrNotFound is returned for unknown ids and tokens by every implementation.
var ErrNotFound = errors.New("repository: record not found")

type Archives interface {
	Create(ctx context.Context, archive *models.Archive) error
	ByID(ctx context.Context, id uuid.UUID) (*models.Archive, error)
	ByDownloadToken(ctx context.Context, token string) (*models.Archive, error)

	// ReplaceBlob swaps the blob reference and key material after an edit
	// uploaded a fresh bundle, and updates the advertised size.
	ReplaceBlob(ctx context.Context, id uuid.UUID, blobID string, keyMaterial []byte, sizeBytes int64) error

	// IncrementDownloadCount atomically bumps the counter, refusing when a
	// finite allowance is already used up. The guard lives in the store's
	// conditional update so two concurrent final-slot downloads cannot both
	// win. Returns false when the increment was refused.
	IncrementDownloadCount(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	Deactivate(ctx context.Context, id uuid.UUID) error
	ExpiredBefore(ctx context.Context, now time.Time) ([]models.Archive, error)
	HardDelete(ctx context.Context, id uuid.UUID) error
}

type Subfiles interface {
	CreateBatch(ctx context.Context, subfiles []models.Subfile) error
	ByArchive(ctx context.Context, archiveID uuid.UUID) ([]models.Subfile, error)
	ByToken(ctx context.Context, fileToken string) (*models.Subfile, error)
	DeleteByTokens(ctx context.Context, archiveID uuid.UUID, tokens []string) error

	// ReplaceForArchive deletes every row of the archive and reinserts the
	// given set, the wholesale rewrite the edit path performs.
	ReplaceForArchive(ctx context.Context, archiveID uuid.UUID, subfiles []models.Subfile) error

	MarkExtracted(ctx context.Context, fileToken string, at time.Time) error
	DeleteByArchive(ctx context.Context, archiveID uuid.UUID) error
}

type Events interface {
	Record(ctx context.Context, event *models.DownloadEvent) error
}

// Store bundles the repositories handed to the assembler, gateway and jobs.
type Store struct {
	Archives Archives
	Subfiles Subfiles
	Events   Events
}
