package archiver

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basit/packshare-backend/apperr"
	"github.com/basit/packshare-backend/audit"
	"github.com/basit/packshare-backend/cache"
	"github.com/basit/packshare-backend/repository"
	"github.com/basit/packshare-backend/scanner"
	"github.com/basit/packshare-backend/secure"
	"github.com/basit/packshare-backend/storage"
)

// infectingScanner flags any buffer containing "MALWARE".
type infectingScanner struct{}

func (infectingScanner) Scan(_ context.Context, data []byte) (scanner.Result, error) {
	if bytes.Contains(data, []byte("MALWARE")) {
		return scanner.Result{Infected: true, Signature: "Test.Malware"}, nil
	}
	return scanner.Result{}, nil
}

type fixture struct {
	assembler *Assembler
	store     *repository.Store
	blobs     *storage.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auditor := audit.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	store := repository.NewMemoryStore()
	blobs := storage.NewMemoryStore()
	gate := scanner.NewGate(infectingScanner{}, auditor)
	tokens := cache.New(16, time.Minute)
	return &fixture{
		assembler: New(store, blobs, tokens, gate, auditor, 1<<20, 24*time.Hour),
		store:     store,
		blobs:     blobs,
	}
}

func sampleFiles() []UploadFile {
	return []UploadFile{
		{Name: "readme.md", Path: "readme.md", MimeType: "text/markdown", Data: []byte("# hi")},
		{Name: "notes.txt", Path: "docs/notes.txt", MimeType: "text/plain", Data: []byte("notes")},
	}
}

func TestCreatePersistsArchiveAndSubfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	archive, err := f.assembler.Create(ctx, sampleFiles(), Options{MaxDownloads: 3})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(archive.DownloadToken, secure.DownloadTokenPrefix))
	assert.True(t, strings.HasPrefix(archive.EditToken, secure.EditTokenPrefix))
	assert.True(t, archive.IsActive)
	assert.Equal(t, 3, archive.MaxDownloads)
	assert.Equal(t, int64(len("# hi")+len("notes")), archive.SizeBytes)
	assert.NotNil(t, archive.ExpiresAt)
	assert.True(t, f.blobs.Has(archive.BlobID))

	subfiles, err := f.store.Subfiles.ByArchive(ctx, archive.ID)
	require.NoError(t, err)
	require.Len(t, subfiles, 2)
	assert.Equal(t, "docs/notes.txt", subfiles[0].Path)
	assert.True(t, strings.HasPrefix(subfiles[0].FileToken, secure.FileTokenPrefix))

	// the stored blob is ciphertext, and decrypts to a zip of the inputs
	ciphertext, err := f.blobs.Get(ctx, archive.BlobID)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(ciphertext, []byte("notes")))

	bundle, err := secure.Decrypt(ciphertext, archive.KeyMaterial)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 2)
}

func TestCreateRejectsDisallowedExtension(t *testing.T) {
	f := newFixture(t)

	files := []UploadFile{{Name: "tool.exe", Path: "tool.exe", Data: []byte("MZ")}}
	_, err := f.assembler.Create(context.Background(), files, Options{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Contains(t, apperr.Message(err), "tool.exe")
}

func TestCreateRejectsOversizedFile(t *testing.T) {
	f := newFixture(t)

	files := []UploadFile{{Name: "big.txt", Path: "big.txt", Data: make([]byte, 2<<20)}}
	_, err := f.assembler.Create(context.Background(), files, Options{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestCreateRejectsDuplicatePaths(t *testing.T) {
	f := newFixture(t)

	files := []UploadFile{
		{Name: "a.txt", Path: "same.txt", Data: []byte("a")},
		{Name: "b.txt", Path: "same.txt", Data: []byte("b")},
	}
	_, err := f.assembler.Create(context.Background(), files, Options{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestCreateRejectsPathTraversal(t *testing.T) {
	f := newFixture(t)

	files := []UploadFile{{Name: "x.txt", Path: "../../etc/x.txt", Data: []byte("x")}}
	_, err := f.assembler.Create(context.Background(), files, Options{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestCreateInfectedBatchPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	files := []UploadFile{
		{Name: "ok.txt", Path: "ok.txt", Data: []byte("fine")},
		{Name: "bad.txt", Path: "bad.txt", Data: []byte("MALWARE payload")},
		{Name: "later.txt", Path: "later.txt", Data: []byte("fine too")},
	}
	_, err := f.assembler.Create(ctx, files, Options{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindVirus))
	assert.Contains(t, apperr.Message(err), "bad.txt")

	// no blob, no rows
	assert.Equal(t, 0, f.blobs.Len())
	expired, err := f.store.Archives.ExpiredBefore(ctx, time.Now().Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestCreateHashesPassword(t *testing.T) {
	f := newFixture(t)

	archive, err := f.assembler.Create(context.Background(), sampleFiles(), Options{Password: "secret123"})
	require.NoError(t, err)
	require.NotNil(t, archive.PasswordHash)
	assert.NotContains(t, *archive.PasswordHash, "secret123")
	assert.True(t, secure.CheckPassword(*archive.PasswordHash, "secret123"))
}

func TestUpdateRejectsBadEditToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	archive, err := f.assembler.Create(ctx, sampleFiles(), Options{})
	require.NoError(t, err)

	err = f.assembler.Update(ctx, archive.ID, "ed_wrong", nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthFailed))

	// record untouched
	subfiles, err := f.store.Subfiles.ByArchive(ctx, archive.ID)
	require.NoError(t, err)
	assert.Len(t, subfiles, 2)
}

func TestUpdateDeletionOnlyKeepsBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	archive, err := f.assembler.Create(ctx, sampleFiles(), Options{})
	require.NoError(t, err)
	before, err := f.store.Subfiles.ByArchive(ctx, archive.ID)
	require.NoError(t, err)

	err = f.assembler.Update(ctx, archive.ID, archive.EditToken, nil, []string{before[0].FileToken})
	require.NoError(t, err)

	after, err := f.store.Archives.ByID(ctx, archive.ID)
	require.NoError(t, err)
	// deletion-only edits do not rebuild the bundle
	assert.Equal(t, archive.BlobID, after.BlobID)

	subfiles, err := f.store.Subfiles.ByArchive(ctx, archive.ID)
	require.NoError(t, err)
	assert.Len(t, subfiles, 1)
}

func TestUpdateDeleteAndAddReplacesBlobAndRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	archive, err := f.assembler.Create(ctx, sampleFiles(), Options{})
	require.NoError(t, err)
	before, err := f.store.Subfiles.ByArchive(ctx, archive.ID)
	require.NoError(t, err)
	require.Len(t, before, 2)

	add := []UploadFile{{Name: "new.txt", Path: "new.txt", Data: []byte("brand new")}}
	deleteTokens := []string{before[0].FileToken, before[1].FileToken}

	err = f.assembler.Update(ctx, archive.ID, archive.EditToken, add, deleteTokens)
	require.NoError(t, err)

	after, err := f.store.Archives.ByID(ctx, archive.ID)
	require.NoError(t, err)
	assert.NotEqual(t, archive.BlobID, after.BlobID)
	assert.NotEqual(t, archive.KeyMaterial, after.KeyMaterial)
	assert.True(t, f.blobs.Has(after.BlobID))

	subfiles, err := f.store.Subfiles.ByArchive(ctx, archive.ID)
	require.NoError(t, err)
	require.Len(t, subfiles, 1)
	assert.Equal(t, "new.txt", subfiles[0].Path)
	assert.Equal(t, int64(len("brand new")), after.SizeBytes)
}

func TestUpdateRejectsPathHeldBySurvivingMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	archive, err := f.assembler.Create(ctx, sampleFiles(), Options{})
	require.NoError(t, err)

	add := []UploadFile{{Name: "readme.md", Path: "readme.md", Data: []byte("shadow")}}
	err = f.assembler.Update(ctx, archive.ID, archive.EditToken, add, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// nothing was touched
	after, err := f.store.Archives.ByID(ctx, archive.ID)
	require.NoError(t, err)
	assert.Equal(t, archive.BlobID, after.BlobID)
	subfiles, err := f.store.Subfiles.ByArchive(ctx, archive.ID)
	require.NoError(t, err)
	assert.Len(t, subfiles, 2)
}

func TestUpdateAllowsReaddOfDeletedPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	archive, err := f.assembler.Create(ctx, sampleFiles(), Options{})
	require.NoError(t, err)
	before, err := f.store.Subfiles.ByArchive(ctx, archive.ID)
	require.NoError(t, err)

	var readmeToken string
	for _, sf := range before {
		if sf.Path == "readme.md" {
			readmeToken = sf.FileToken
		}
	}
	require.NotEmpty(t, readmeToken)

	// deleting the old member in the same request frees its path
	add := []UploadFile{{Name: "readme.md", Path: "readme.md", Data: []byte("v2")}}
	err = f.assembler.Update(ctx, archive.ID, archive.EditToken, add, []string{readmeToken})
	require.NoError(t, err)

	subfiles, err := f.store.Subfiles.ByArchive(ctx, archive.ID)
	require.NoError(t, err)
	paths := make([]string, 0, len(subfiles))
	for _, sf := range subfiles {
		paths = append(paths, sf.Path)
	}
	assert.ElementsMatch(t, []string{"readme.md", "docs/notes.txt"}, paths)
}

func TestUpdateScansOnlyNewFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	archive, err := f.assembler.Create(ctx, sampleFiles(), Options{})
	require.NoError(t, err)

	add := []UploadFile{{Name: "evil.txt", Path: "evil.txt", Data: []byte("MALWARE")}}
	err = f.assembler.Update(ctx, archive.ID, archive.EditToken, add, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindVirus))

	// blob untouched by the failed edit
	after, err := f.store.Archives.ByID(ctx, archive.ID)
	require.NoError(t, err)
	assert.Equal(t, archive.BlobID, after.BlobID)
}

func TestDeleteDeactivatesAndRemoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	archive, err := f.assembler.Create(ctx, sampleFiles(), Options{})
	require.NoError(t, err)

	require.NoError(t, f.assembler.Delete(ctx, archive.ID, archive.EditToken))

	after, err := f.store.Archives.ByID(ctx, archive.ID)
	require.NoError(t, err)
	assert.False(t, after.IsActive)
	assert.False(t, f.blobs.Has(archive.BlobID))

	subfiles, err := f.store.Subfiles.ByArchive(ctx, archive.ID)
	require.NoError(t, err)
	assert.Empty(t, subfiles)
}

func TestUpdateUnknownArchive(t *testing.T) {
	f := newFixture(t)

	err := f.assembler.Update(context.Background(), uuid.New(), "ed_x", nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestPackExtractRoundTrip(t *testing.T) {
	files := []UploadFile{
		{Path: "a/b.txt", Data: []byte("bee")},
		{Path: "c.txt", Data: []byte("sea")},
	}
	bundle, err := Pack(files)
	require.NoError(t, err)

	data, err := ExtractMember(bundle, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("bee"), data)

	_, err = ExtractMember(bundle, "missing.txt")
	assert.Error(t, err)
}
