package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basit/packshare-backend/models"
)

// NewMemoryStore returns a Store backed by in-process maps, used by tests and
// local development. The increment guard is taken under the same mutex as the
// row, mirroring the conditional-update semantics of the postgres store.
func NewMemoryStore() *Store {
	m := &memory{
		archives: make(map[uuid.UUID]*models.Archive),
		byToken:  make(map[string]uuid.UUID),
		subfiles: make(map[string]*models.Subfile),
	}
	return &Store{
		Archives: (*memoryArchives)(m),
		Subfiles: (*memorySubfiles)(m),
		Events:   (*memoryEvents)(m),
	}
}

type memory struct {
	mu       sync.Mutex
	archives map[uuid.UUID]*models.Archive
	byToken  map[string]uuid.UUID
	subfiles map[string]*models.Subfile
	events   []models.DownloadEvent
}

type memoryArchives memory

func (m *memoryArchives) Create(_ context.Context, archive *models.Archive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if archive.ID == uuid.Nil {
		archive.ID = uuid.New()
	}
	cp := *archive
	m.archives[cp.ID] = &cp
	m.byToken[cp.DownloadToken] = cp.ID
	return nil
}

func (m *memoryArchives) ByID(_ context.Context, id uuid.UUID) (*models.Archive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	archive, ok := m.archives[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *archive
	return &cp, nil
}

func (m *memoryArchives) ByDownloadToken(_ context.Context, token string) (*models.Archive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	archive, ok := m.archives[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *archive
	return &cp, nil
}

func (m *memoryArchives) ReplaceBlob(_ context.Context, id uuid.UUID, blobID string, keyMaterial []byte, sizeBytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	archive, ok := m.archives[id]
	if !ok {
		return ErrNotFound
	}
	archive.BlobID = blobID
	archive.KeyMaterial = append([]byte(nil), keyMaterial...)
	archive.SizeBytes = sizeBytes
	return nil
}

func (m *memoryArchives) IncrementDownloadCount(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	archive, ok := m.archives[id]
	if !ok {
		return false, ErrNotFound
	}
	if archive.MaxDownloads > 0 && archive.DownloadCount >= archive.MaxDownloads {
		return false, nil
	}
	archive.DownloadCount++
	at := now
	archive.LastDownloadedAt = &at
	return true, nil
}

func (m *memoryArchives) Deactivate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	archive, ok := m.archives[id]
	if !ok {
		return ErrNotFound
	}
	archive.IsActive = false
	return nil
}

func (m *memoryArchives) ExpiredBefore(_ context.Context, now time.Time) ([]models.Archive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Archive
	for _, archive := range m.archives {
		if archive.ExpiresAt != nil && archive.ExpiresAt.Before(now) {
			out = append(out, *archive)
		}
	}
	return out, nil
}

func (m *memoryArchives) HardDelete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if archive, ok := m.archives[id]; ok {
		delete(m.byToken, archive.DownloadToken)
		delete(m.archives, id)
	}
	return nil
}

type memorySubfiles memory

func (m *memorySubfiles) CreateBatch(_ context.Context, subfiles []models.Subfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sf := range subfiles {
		cp := sf
		m.subfiles[cp.FileToken] = &cp
	}
	return nil
}

func (m *memorySubfiles) ByArchive(_ context.Context, archiveID uuid.UUID) ([]models.Subfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subfile
	for _, sf := range m.subfiles {
		if sf.ArchiveID == archiveID {
			out = append(out, *sf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memorySubfiles) ByToken(_ context.Context, fileToken string) (*models.Subfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sf, ok := m.subfiles[fileToken]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sf
	return &cp, nil
}

func (m *memorySubfiles) DeleteByTokens(_ context.Context, archiveID uuid.UUID, tokens []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range tokens {
		if sf, ok := m.subfiles[token]; ok && sf.ArchiveID == archiveID {
			delete(m.subfiles, token)
		}
	}
	return nil
}

func (m *memorySubfiles) ReplaceForArchive(ctx context.Context, archiveID uuid.UUID, subfiles []models.Subfile) error {
	if err := m.DeleteByArchive(ctx, archiveID); err != nil {
		return err
	}
	return m.CreateBatch(ctx, subfiles)
}

func (m *memorySubfiles) MarkExtracted(_ context.Context, fileToken string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sf, ok := m.subfiles[fileToken]
	if !ok {
		return ErrNotFound
	}
	sf.Extracted = true
	t := at
	sf.DownloadedAt = &t
	return nil
}

func (m *memorySubfiles) DeleteByArchive(_ context.Context, archiveID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, sf := range m.subfiles {
		if sf.ArchiveID == archiveID {
			delete(m.subfiles, token)
		}
	}
	return nil
}

type memoryEvents memory

func (m *memoryEvents) Record(_ context.Context, event *models.DownloadEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	m.events = append(m.events, cp)
	return nil
}
