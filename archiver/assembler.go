// Package archiver assembles uploads into encrypted archive artifacts. It
// owns the create/edit/delete pipeline: validation, scanning, packing,
// encryption, blob persistence and the metadata rows.
package archiver

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/basit/packshare-backend/apperr"
	"github.com/basit/packshare-backend/audit"
	"github.com/basit/packshare-backend/cache"
	"github.com/basit/packshare-backend/models"
	"github.com/basit/packshare-backend/repository"
	"github.com/basit/packshare-backend/scanner"
	"github.com/basit/packshare-backend/secure"
	"github.com/basit/packshare-backend/storage"
)

// UploadFile is one incoming file: its original name, the relative path it
// should occupy inside the bundle, and the raw bytes.
type UploadFile struct {
	Name     string
	Path     string
	MimeType string
	Data     []byte
}

// Options are the owner-chosen constraints for a new archive.
type Options struct {
	Password     string
	MaxDownloads int
	Expiry       time.Duration
}

type Assembler struct {
	store   *repository.Store
	blobs   storage.BlobStore
	tokens  *cache.TokenCache
	gate    *scanner.Gate
	auditor *audit.Auditor

	maxFileSize   int64
	defaultExpiry time.Duration
}

func New(store *repository.Store, blobs storage.BlobStore, tokens *cache.TokenCache,
	gate *scanner.Gate, auditor *audit.Auditor, maxFileSize int64, defaultExpiry time.Duration) *Assembler {
	return &Assembler{
		store:         store,
		blobs:         blobs,
		tokens:        tokens,
		gate:          gate,
		auditor:       auditor,
		maxFileSize:   maxFileSize,
		defaultExpiry: defaultExpiry,
	}
}

// Create validates, scans, packs and encrypts the files, persists the blob
// and the metadata rows, and returns the new archive carrying both tokens.
// Nothing is persisted unless every file passes validation and scanning.
func (a *Assembler) Create(ctx context.Context, files []UploadFile, opts Options) (*models.Archive, error) {
	if err := validate(files, a.maxFileSize); err != nil {
		return nil, err
	}
	if err := a.scan(ctx, files); err != nil {
		return nil, err
	}

	bundle, err := Pack(files)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to pack upload")
	}

	material, err := secure.NewKeyMaterial()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to generate archive key")
	}
	ciphertext, err := secure.Encrypt(bundle, material)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to encrypt bundle")
	}

	blobID := uuid.New().String()
	if err := a.blobs.Put(ctx, blobID, ciphertext); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to store bundle")
	}

	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = a.defaultExpiry
	}
	expiresAt := time.Now().Add(expiry)

	archive := &models.Archive{
		ID:            uuid.New(),
		DownloadToken: secure.NewDownloadToken(),
		EditToken:     secure.NewEditToken(),
		SizeBytes:     totalSize(files),
		MimeType:      models.BundleMimeType,
		MaxDownloads:  opts.MaxDownloads,
		IsActive:      true,
		BlobID:        blobID,
		KeyMaterial:   material,
		ExpiresAt:     &expiresAt,
		CreatedAt:     time.Now(),
	}
	if opts.Password != "" {
		hash, err := secure.HashPassword(opts.Password)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, err, "failed to hash password")
		}
		archive.PasswordHash = &hash
	}

	if err := a.store.Archives.Create(ctx, archive); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to save archive")
	}
	if err := a.store.Subfiles.CreateBatch(ctx, subfileRows(archive.ID, files)); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to save file entries")
	}

	a.tokens.Put(archive.DownloadToken, archive.ID)
	a.auditor.ArchiveCreated(ctx, archive.ID, len(files), archive.SizeBytes)
	return archive, nil
}

// Update applies an edit: delete the listed subfile rows, then, when new
// files are present, scan and pack only those, upload a fresh blob and
// replace the archive's blob reference and subfile set wholesale.
//
// Deletion-only edits stop after the row deletes; the packed blob is not
// rebuilt, which leaves deleted members physically present in the old blob.
// That skew is deliberate — reconciling it would mean re-encrypting on every
// edit.
func (a *Assembler) Update(ctx context.Context, archiveID uuid.UUID, editToken string,
	add []UploadFile, deleteTokens []string) error {

	archive, err := a.authorize(ctx, archiveID, editToken)
	if err != nil {
		return err
	}

	if len(deleteTokens) > 0 {
		if err := a.store.Subfiles.DeleteByTokens(ctx, archive.ID, deleteTokens); err != nil {
			return apperr.Wrap(apperr.KindStorage, err, "failed to delete file entries")
		}
	}
	if len(add) == 0 {
		a.auditor.ArchiveEdited(ctx, archive.ID, 0, len(deleteTokens))
		return nil
	}

	if err := validate(add, a.maxFileSize); err != nil {
		return err
	}
	surviving, err := a.store.Subfiles.ByArchive(ctx, archive.ID)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "failed to load file entries")
	}
	// Path uniqueness holds across the whole archive, not just the incoming
	// batch: an addition may not shadow a member that survived the deletes.
	held := make(map[string]bool, len(surviving))
	for _, sf := range surviving {
		held[sf.Path] = true
	}
	for _, file := range add {
		if held[file.Path] {
			return apperr.New(apperr.KindValidation, "path %q already exists in the archive", file.Path)
		}
	}
	// Only the new buffers are scanned; previously accepted members are not
	// rescanned on edit.
	if err := a.scan(ctx, add); err != nil {
		return err
	}

	bundle, err := Pack(add)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "failed to pack upload")
	}
	material, err := secure.NewKeyMaterial()
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "failed to generate archive key")
	}
	ciphertext, err := secure.Encrypt(bundle, material)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "failed to encrypt bundle")
	}

	// The new blob is fully uploaded before any metadata points at it; a
	// failure after this leaves an orphaned blob for the sweep, never a
	// dangling reference. The old blob is orphaned the same way.
	blobID := uuid.New().String()
	if err := a.blobs.Put(ctx, blobID, ciphertext); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "failed to store bundle")
	}

	next := append(surviving, subfileRows(archive.ID, add)...)

	var total int64
	for _, sf := range next {
		total += sf.SizeBytes
	}
	if err := a.store.Archives.ReplaceBlob(ctx, archive.ID, blobID, material, total); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "failed to update archive")
	}
	if err := a.store.Subfiles.ReplaceForArchive(ctx, archive.ID, next); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "failed to replace file entries")
	}

	a.auditor.ArchiveEdited(ctx, archive.ID, len(add), len(deleteTokens))
	return nil
}

// Delete deactivates the archive and removes its blob and subfile rows.
func (a *Assembler) Delete(ctx context.Context, archiveID uuid.UUID, editToken string) error {
	archive, err := a.authorize(ctx, archiveID, editToken)
	if err != nil {
		return err
	}
	if err := a.store.Archives.Deactivate(ctx, archive.ID); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "failed to deactivate archive")
	}
	if err := a.store.Subfiles.DeleteByArchive(ctx, archive.ID); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "failed to delete file entries")
	}
	if err := a.blobs.Delete(ctx, archive.BlobID); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "failed to delete bundle")
	}
	a.tokens.Forget(archive.DownloadToken)
	a.auditor.ArchiveDeleted(ctx, archive.ID)
	return nil
}

// authorize fetches the archive by its own id and compares the stored edit
// token in constant time. The secret token is never used as a lookup key.
func (a *Assembler) authorize(ctx context.Context, archiveID uuid.UUID, editToken string) (*models.Archive, error) {
	archive, err := a.store.Archives.ByID(ctx, archiveID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "archive not found")
		}
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to load archive")
	}
	if !archive.IsActive {
		return nil, apperr.New(apperr.KindNotFound, "archive not found")
	}
	if !secure.CompareTokens(archive.EditToken, editToken) {
		return nil, apperr.New(apperr.KindAuthFailed, "invalid edit token")
	}
	return archive, nil
}

func (a *Assembler) scan(ctx context.Context, files []UploadFile) error {
	buffers := make([]scanner.Buffer, 0, len(files))
	for _, file := range files {
		buffers = append(buffers, scanner.Buffer{Name: file.Name, Data: file.Data})
	}
	return a.gate.Check(ctx, buffers)
}

func subfileRows(archiveID uuid.UUID, files []UploadFile) []models.Subfile {
	rows := make([]models.Subfile, 0, len(files))
	now := time.Now()
	for _, file := range files {
		name := file.Name
		if name == "" {
			name = path.Base(file.Path)
		}
		rows = append(rows, models.Subfile{
			FileToken: secure.NewFileToken(),
			ArchiveID: archiveID,
			Name:      name,
			Path:      file.Path,
			SizeBytes: int64(len(file.Data)),
			MimeType:  file.MimeType,
			CreatedAt: now,
		})
	}
	return rows
}

func totalSize(files []UploadFile) int64 {
	var total int64
	for _, file := range files {
		total += int64(len(file.Data))
	}
	return total
}
