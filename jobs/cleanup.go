package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/basit/packshare-backend/repository"
	"github.com/basit/packshare-backend/storage"
)

// Cleanup is the expiry sweep: expired archives lose their blob, subfile rows
// and archive row. Blobs orphaned by edits are reclaimed the same way once
// their archive expires.
type Cleanup struct {
	store    *repository.Store
	blobs    storage.BlobStore
	log      *slog.Logger
	interval time.Duration
}

func NewCleanup(store *repository.Store, blobs storage.BlobStore, log *slog.Logger) *Cleanup {
	return &Cleanup{store: store, blobs: blobs, log: log, interval: 1 * time.Hour}
}

// Start runs the sweep on a ticker until the context is cancelled.
func (j *Cleanup) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.sweep(ctx)
			}
		}
	}()
}

func (j *Cleanup) sweep(ctx context.Context) {
	expired, err := j.store.Archives.ExpiredBefore(ctx, time.Now())
	if err != nil {
		j.log.Error("cleanup: finding expired archives failed", "error", err)
		return
	}

	for _, archive := range expired {
		if err := j.blobs.Delete(ctx, archive.BlobID); err != nil {
			j.log.Error("cleanup: blob delete failed", "archive_id", archive.ID, "error", err)
			continue
		}
		if err := j.store.Subfiles.DeleteByArchive(ctx, archive.ID); err != nil {
			j.log.Error("cleanup: subfile delete failed", "archive_id", archive.ID, "error", err)
			continue
		}
		if err := j.store.Archives.HardDelete(ctx, archive.ID); err != nil {
			j.log.Error("cleanup: archive delete failed", "archive_id", archive.ID, "error", err)
			continue
		}
		j.log.Info("cleanup: removed expired archive", "archive_id", archive.ID)
	}
}
