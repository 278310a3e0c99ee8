// Package gateway resolves download tokens and enforces the access rules:
// active/expired/limit/password, evaluated in a fixed order, plus the
// exactly-once download counting.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/basit/packshare-backend/apperr"
	"github.com/basit/packshare-backend/archiver"
	"github.com/basit/packshare-backend/audit"
	"github.com/basit/packshare-backend/cache"
	"github.com/basit/packshare-backend/models"
	"github.com/basit/packshare-backend/repository"
	"github.com/basit/packshare-backend/secure"
	"github.com/basit/packshare-backend/storage"
)

// Client identifies the requester for audit purposes.
type Client struct {
	IP        string
	UserAgent string
}

// Summary is the metadata view of an archive. Files is nil while the archive
// is locked behind a password that has not been supplied.
type Summary struct {
	DownloadToken      string           `json:"downloadToken"`
	SizeBytes          int64            `json:"sizeBytes"`
	MimeType           string           `json:"mimeType"`
	RemainingDownloads int              `json:"remainingDownloads"`
	ExpiresAt          *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	Locked             bool             `json:"locked"`
	Files              []models.Subfile `json:"files,omitempty"`
}

// Bundle is a decrypted archive ready to stream.
type Bundle struct {
	Archive *models.Archive
	Data    []byte
}

// Member is one decrypted subfile.
type Member struct {
	Subfile *models.Subfile
	Data    []byte
}

type Gateway struct {
	store   *repository.Store
	blobs   storage.BlobStore
	tokens  *cache.TokenCache
	auditor *audit.Auditor
	now     func() time.Time
}

func New(store *repository.Store, blobs storage.BlobStore, tokens *cache.TokenCache, auditor *audit.Auditor) *Gateway {
	return &Gateway{store: store, blobs: blobs, tokens: tokens, auditor: auditor, now: time.Now}
}

// Download authorizes the token, decrypts the bundle and claims one download
// slot. The slot claim is a conditional update in the store, so of two
// concurrent requests racing for the final slot exactly one succeeds; the
// loser observes LimitExceeded.
func (g *Gateway) Download(ctx context.Context, token, password string, client Client) (*Bundle, error) {
	archive, err := g.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := g.decide(archive, password); err != nil {
		return nil, err
	}

	data, err := g.fetchBundle(ctx, archive)
	if err != nil {
		return nil, err
	}

	ok, err := g.store.Archives.IncrementDownloadCount(ctx, archive.ID, g.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to record download")
	}
	if !ok {
		return nil, apperr.New(apperr.KindLimitExceeded, "download limit reached")
	}

	g.recordEvent(ctx, archive.ID, "", client)
	g.auditor.Downloaded(ctx, archive.ID, client.IP)
	return &Bundle{Archive: archive, Data: data}, nil
}

// Info returns the metadata view. The summary fields never require the
// password; the member list does. A wrong password is an AuthFailed error, an
// absent one just yields a locked summary.
func (g *Gateway) Info(ctx context.Context, token, password string) (*Summary, error) {
	archive, err := g.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if !archive.IsActive {
		return nil, apperr.New(apperr.KindNotFound, "archive not found")
	}
	if archive.Expired(g.now()) {
		return nil, apperr.New(apperr.KindExpired, "this archive has expired")
	}

	summary := &Summary{
		DownloadToken:      archive.DownloadToken,
		SizeBytes:          archive.SizeBytes,
		MimeType:           archive.MimeType,
		RemainingDownloads: archive.RemainingDownloads(),
		ExpiresAt:          archive.ExpiresAt,
		CreatedAt:          archive.CreatedAt,
	}

	if archive.PasswordHash != nil {
		if password == "" {
			summary.Locked = true
			return summary, nil
		}
		if !secure.CheckPassword(*archive.PasswordHash, password) {
			return nil, apperr.New(apperr.KindAuthFailed, "incorrect password")
		}
	}

	files, err := g.store.Subfiles.ByArchive(ctx, archive.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to load file entries")
	}
	summary.Files = files
	return summary, nil
}

// Extract authorizes the token and pulls one member out of the decrypted
// bundle. Extraction claims a download slot like a full download and marks
// the subfile row extracted.
func (g *Gateway) Extract(ctx context.Context, token, password, fileToken string, client Client) (*Member, error) {
	archive, err := g.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := g.decide(archive, password); err != nil {
		return nil, err
	}

	subfile, err := g.store.Subfiles.ByToken(ctx, fileToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "file not found")
		}
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to load file entry")
	}
	if subfile.ArchiveID != archive.ID {
		return nil, apperr.New(apperr.KindNotFound, "file not found")
	}

	bundle, err := g.fetchBundle(ctx, archive)
	if err != nil {
		return nil, err
	}
	data, err := archiver.ExtractMember(bundle, subfile.Path)
	if err != nil {
		// The row can describe a member that only exists in a previous
		// blob version; edits do not rebuild the bundle on deletion-only
		// changes.
		return nil, apperr.New(apperr.KindNotFound, "file is no longer retrievable")
	}

	ok, err := g.store.Archives.IncrementDownloadCount(ctx, archive.ID, g.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to record download")
	}
	if !ok {
		return nil, apperr.New(apperr.KindLimitExceeded, "download limit reached")
	}
	if err := g.store.Subfiles.MarkExtracted(ctx, fileToken, g.now()); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to mark file extracted")
	}

	g.recordEvent(ctx, archive.ID, fileToken, client)
	g.auditor.Extracted(ctx, archive.ID, fileToken, client.IP)
	return &Member{Subfile: subfile, Data: data}, nil
}

// resolve turns a download token into an archive record, trying the cache
// first and falling back to the authoritative store on a miss.
func (g *Gateway) resolve(ctx context.Context, token string) (*models.Archive, error) {
	if id, ok := g.tokens.Get(token); ok {
		archive, err := g.store.Archives.ByID(ctx, id)
		if err == nil && archive.DownloadToken == token {
			return archive, nil
		}
		// Stale cache entry; fall through to the store.
		g.tokens.Forget(token)
	}

	archive, err := g.store.Archives.ByDownloadToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "archive not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to resolve token")
	}
	g.tokens.Put(token, archive.ID)
	return archive, nil
}

// decide applies the authorization state machine in its fixed order: first
// match wins.
func (g *Gateway) decide(archive *models.Archive, password string) error {
	switch {
	case !archive.IsActive:
		return apperr.New(apperr.KindNotFound, "archive not found")
	case archive.Expired(g.now()):
		return apperr.New(apperr.KindExpired, "this archive has expired")
	case archive.LimitReached():
		return apperr.New(apperr.KindLimitExceeded, "download limit reached")
	case archive.PasswordHash != nil && password == "":
		return apperr.New(apperr.KindPasswordRequired, "password required")
	case archive.PasswordHash != nil && !secure.CheckPassword(*archive.PasswordHash, password):
		return apperr.New(apperr.KindAuthFailed, "incorrect password")
	}
	return nil
}

func (g *Gateway) fetchBundle(ctx context.Context, archive *models.Archive) ([]byte, error) {
	ciphertext, err := g.blobs.Get(ctx, archive.BlobID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to fetch bundle")
	}
	data, err := secure.Decrypt(ciphertext, archive.KeyMaterial)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "failed to decrypt bundle")
	}
	return data, nil
}

func (g *Gateway) recordEvent(ctx context.Context, archiveID uuid.UUID, fileToken string, client Client) {
	// Event rows are best-effort; a failed insert never fails the download.
	_ = g.store.Events.Record(ctx, &models.DownloadEvent{
		ID:        uuid.New(),
		ArchiveID: archiveID,
		FileToken: fileToken,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		CreatedAt: g.now(),
	})
}
