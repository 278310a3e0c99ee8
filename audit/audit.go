// Package audit emits the structured security-relevant events: uploads, scan
// rejections, scanner degradation, downloads and deletions. Events are slog
// records under a fixed "audit" group so they can be filtered downstream.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type Auditor struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Auditor {
	return &Auditor{log: log.WithGroup("audit")}
}

func (a *Auditor) ArchiveCreated(ctx context.Context, archiveID uuid.UUID, fileCount int, totalSize int64) {
	if a == nil {
		return
	}
	a.log.InfoContext(ctx, "archive created",
		"archive_id", archiveID, "file_count", fileCount, "total_size", totalSize)
}

func (a *Auditor) ArchiveEdited(ctx context.Context, archiveID uuid.UUID, added, deleted int) {
	if a == nil {
		return
	}
	a.log.InfoContext(ctx, "archive edited",
		"archive_id", archiveID, "added", added, "deleted", deleted)
}

func (a *Auditor) ArchiveDeleted(ctx context.Context, archiveID uuid.UUID) {
	if a == nil {
		return
	}
	a.log.InfoContext(ctx, "archive deleted", "archive_id", archiveID)
}

func (a *Auditor) ScanRejected(ctx context.Context, name, signature string) {
	if a == nil {
		return
	}
	a.log.WarnContext(ctx, "upload rejected by scanner",
		"file", name, "signature", signature)
}

func (a *Auditor) ScannerDegraded(ctx context.Context, err error) {
	if a == nil {
		return
	}
	a.log.WarnContext(ctx, "scanner unavailable, falling back to signature heuristic",
		"error", err)
}

func (a *Auditor) Downloaded(ctx context.Context, archiveID uuid.UUID, ip string) {
	if a == nil {
		return
	}
	a.log.InfoContext(ctx, "archive downloaded", "archive_id", archiveID, "ip", ip)
}

func (a *Auditor) Extracted(ctx context.Context, archiveID uuid.UUID, fileToken, ip string) {
	if a == nil {
		return
	}
	a.log.InfoContext(ctx, "subfile extracted",
		"archive_id", archiveID, "file_token", fileToken, "ip", ip)
}
