package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/basit/packshare-backend/models"
)

// NewGormStore wires the postgres-backed repositories.
func NewGormStore(db *gorm.DB) *Store {
	return &Store{
		Archives: &gormArchives{db: db},
		Subfiles: &gormSubfiles{db: db},
		Events:   &gormEvents{db: db},
	}
}

type gormArchives struct {
	db *gorm.DB
}

func (r *gormArchives) Create(ctx context.Context, archive *models.Archive) error {
	return r.db.WithContext(ctx).Create(archive).Error
}

func (r *gormArchives) ByID(ctx context.Context, id uuid.UUID) (*models.Archive, error) {
	var archive models.Archive
	err := r.db.WithContext(ctx).First(&archive, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &archive, nil
}

func (r *gormArchives) ByDownloadToken(ctx context.Context, token string) (*models.Archive, error) {
	var archive models.Archive
	err := r.db.WithContext(ctx).Where("download_token = ?", token).First(&archive).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &archive, nil
}

func (r *gormArchives) ReplaceBlob(ctx context.Context, id uuid.UUID, blobID string, keyMaterial []byte, sizeBytes int64) error {
	return r.db.WithContext(ctx).Model(&models.Archive{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"blob_id":      blobID,
			"key_material": keyMaterial,
			"size_bytes":   sizeBytes,
		}).Error
}

func (r *gormArchives) IncrementDownloadCount(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	// The WHERE guard makes the increment a compare-and-set: of two
	// concurrent requests racing for the last download slot, exactly one
	// row update succeeds.
	res := r.db.WithContext(ctx).Model(&models.Archive{}).
		Where("id = ? AND (max_downloads <= 0 OR download_count < max_downloads)", id).
		UpdateColumns(map[string]any{
			"download_count":     gorm.Expr("download_count + ?", 1),
			"last_downloaded_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormArchives) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Archive{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *gormArchives) ExpiredBefore(ctx context.Context, now time.Time) ([]models.Archive, error) {
	var archives []models.Archive
	err := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Find(&archives).Error
	return archives, err
}

func (r *gormArchives) HardDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Archive{}, "id = ?", id).Error
}

type gormSubfiles struct {
	db *gorm.DB
}

func (r *gormSubfiles) CreateBatch(ctx context.Context, subfiles []models.Subfile) error {
	if len(subfiles) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&subfiles).Error
}

func (r *gormSubfiles) ByArchive(ctx context.Context, archiveID uuid.UUID) ([]models.Subfile, error) {
	var subfiles []models.Subfile
	err := r.db.WithContext(ctx).
		Where("archive_id = ?", archiveID).
		Order("path").
		Find(&subfiles).Error
	return subfiles, err
}

func (r *gormSubfiles) ByToken(ctx context.Context, fileToken string) (*models.Subfile, error) {
	var subfile models.Subfile
	err := r.db.WithContext(ctx).First(&subfile, "file_token = ?", fileToken).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &subfile, nil
}

func (r *gormSubfiles) DeleteByTokens(ctx context.Context, archiveID uuid.UUID, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("archive_id = ? AND file_token IN ?", archiveID, tokens).
		Delete(&models.Subfile{}).Error
}

func (r *gormSubfiles) ReplaceForArchive(ctx context.Context, archiveID uuid.UUID, subfiles []models.Subfile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("archive_id = ?", archiveID).Delete(&models.Subfile{}).Error; err != nil {
			return err
		}
		if len(subfiles) == 0 {
			return nil
		}
		return tx.Create(&subfiles).Error
	})
}

func (r *gormSubfiles) MarkExtracted(ctx context.Context, fileToken string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Subfile{}).
		Where("file_token = ?", fileToken).
		Updates(map[string]any{"extracted": true, "downloaded_at": at}).Error
}

func (r *gormSubfiles) DeleteByArchive(ctx context.Context, archiveID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("archive_id = ?", archiveID).
		Delete(&models.Subfile{}).Error
}

type gormEvents struct {
	db *gorm.DB
}

func (r *gormEvents) Record(ctx context.Context, event *models.DownloadEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
