// Package handlers binds the HTTP surface to the assembler and gateway.
// Request parsing and validation happen here; nothing loosely typed crosses
// into the core packages.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/basit/packshare-backend/apperr"
	"github.com/basit/packshare-backend/archiver"
	"github.com/basit/packshare-backend/filetree"
	"github.com/basit/packshare-backend/gateway"
)

type Handler struct {
	assembler *archiver.Assembler
	gateway   *gateway.Gateway
	baseURL   string
	log       *slog.Logger
}

func New(assembler *archiver.Assembler, gw *gateway.Gateway, baseURL string, log *slog.Logger) *Handler {
	return &Handler{assembler: assembler, gateway: gw, baseURL: baseURL, log: log}
}

// CreateArchive accepts a multipart batch of files plus the optional
// password, download limit and expiry, and returns both tokens. The edit
// token is shown here exactly once.
func (h *Handler) CreateArchive(c *gin.Context) {
	files, err := h.readUploads(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	opts := archiver.Options{Password: c.PostForm("password")}
	if v := c.PostForm("maxDownloads"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.respondError(c, apperr.New(apperr.KindValidation, "maxDownloads must be a non-negative integer"))
			return
		}
		opts.MaxDownloads = n
	}
	if v := c.PostForm("expiryHours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.respondError(c, apperr.New(apperr.KindValidation, "expiryHours must be a positive integer"))
			return
		}
		opts.Expiry = time.Duration(n) * time.Hour
	}

	archive, err := h.assembler.Create(c.Request.Context(), files, opts)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            archive.ID,
		"downloadToken": archive.DownloadToken,
		"editToken":     archive.EditToken,
		"expiresAt":     archive.ExpiresAt,
	})
}

// GetArchive returns the metadata view: summary always, member list only
// once the password constraint is satisfied.
func (h *Handler) GetArchive(c *gin.Context) {
	summary, err := h.gateway.Info(c.Request.Context(), c.Param("ref"), requestPassword(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// DownloadArchive streams the decrypted bundle and claims a download slot.
func (h *Handler) DownloadArchive(c *gin.Context) {
	token := c.Param("ref")
	bundle, err := h.gateway.Download(c.Request.Context(), token, requestPassword(c), clientOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", attachmentDisposition(token+".zip"))
	c.Data(http.StatusOK, bundle.Archive.MimeType, bundle.Data)
}

// ExtractFile streams one member of the bundle.
func (h *Handler) ExtractFile(c *gin.Context) {
	member, err := h.gateway.Extract(c.Request.Context(), c.Param("ref"),
		requestPassword(c), c.Param("fileToken"), clientOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	contentType := member.Subfile.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", attachmentDisposition(member.Subfile.Name))
	c.Data(http.StatusOK, contentType, member.Data)
}

// ArchiveQR renders the share link as a QR code PNG.
func (h *Handler) ArchiveQR(c *gin.Context) {
	token := c.Param("ref")
	// resolve first so unknown or expired tokens do not get a code
	if _, err := h.gateway.Info(c.Request.Context(), token, ""); err != nil {
		h.respondError(c, err)
		return
	}

	png, err := qrcode.Encode(h.baseURL+"/api/archives/"+token, qrcode.Medium, 256)
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.KindStorage, err, "failed to render QR code"))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// GetArchiveTree returns the archive's members as the folder tree the
// management surface stages edits against. Like the member list, it sits
// behind the password when one is set.
func (h *Handler) GetArchiveTree(c *gin.Context) {
	summary, err := h.gateway.Info(c.Request.Context(), c.Param("ref"), requestPassword(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if summary.Locked {
		h.respondError(c, apperr.New(apperr.KindPasswordRequired, "password required"))
		return
	}

	entries := make([]filetree.Entry, 0, len(summary.Files))
	for _, sf := range summary.Files {
		entries = append(entries, filetree.Entry{
			Path:      sf.Path,
			FileToken: sf.FileToken,
			SizeBytes: sf.SizeBytes,
			MimeType:  sf.MimeType,
		})
	}
	c.JSON(http.StatusOK, filetree.Build(entries, filetree.StatusExisting))
}

// EditArchive applies a staged change set: files to add and file tokens to
// delete, authorized by the edit token.
func (h *Handler) EditArchive(c *gin.Context) {
	archiveID, err := uuid.Parse(c.Param("ref"))
	if err != nil {
		h.respondError(c, apperr.New(apperr.KindValidation, "invalid archive id"))
		return
	}
	editToken := c.PostForm("editToken")
	if editToken == "" {
		h.respondError(c, apperr.New(apperr.KindAuthFailed, "edit token required"))
		return
	}

	var add []archiver.UploadFile
	if form, err := c.MultipartForm(); err == nil && len(form.File["files"]) > 0 {
		add, err = h.readUploads(c)
		if err != nil {
			h.respondError(c, err)
			return
		}
	}
	deleteTokens := c.PostFormArray("deleteTokens")

	if err := h.assembler.Update(c.Request.Context(), archiveID, editToken, add, deleteTokens); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteArchive deactivates the archive and removes its blob and subfiles.
func (h *Handler) DeleteArchive(c *gin.Context) {
	archiveID, err := uuid.Parse(c.Param("ref"))
	if err != nil {
		h.respondError(c, apperr.New(apperr.KindValidation, "invalid archive id"))
		return
	}
	editToken := c.PostForm("editToken")
	if editToken == "" {
		editToken = c.GetHeader("X-Edit-Token")
	}
	if editToken == "" {
		h.respondError(c, apperr.New(apperr.KindAuthFailed, "edit token required"))
		return
	}

	if err := h.assembler.Delete(c.Request.Context(), archiveID, editToken); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// readUploads pulls the files and their relative paths out of the multipart
// form. When no explicit paths are given, each file lands under its own
// filename at the bundle root.
func (h *Handler) readUploads(c *gin.Context) ([]archiver.UploadFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "no files uploaded")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no files uploaded")
	}
	paths := form.Value["paths"]
	if len(paths) > 0 && len(paths) != len(headers) {
		return nil, apperr.New(apperr.KindValidation, "paths must match files one to one")
	}

	files := make([]archiver.UploadFile, 0, len(headers))
	for i, header := range headers {
		src, err := header.Open()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "failed to read %q", header.Filename)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "failed to read %q", header.Filename)
		}

		relPath := header.Filename
		if len(paths) > 0 {
			relPath = paths[i]
		}
		files = append(files, archiver.UploadFile{
			Name:     header.Filename,
			Path:     relPath,
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return files, nil
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		var e *apperr.Error
		if errors.As(err, &e) && e.Err != nil {
			h.log.Error("request failed", "path", c.FullPath(), "error", e.Err)
		} else {
			h.log.Error("request failed", "path", c.FullPath(), "error", err)
		}
	}
	c.JSON(status, gin.H{"error": gin.H{
		"code":    string(apperr.KindOf(err)),
		"message": apperr.Message(err),
	}})
}

// requestPassword reads the archive password from the header, query or form,
// in that order.
// attachmentDisposition quotes the filename so member names containing
// quotes or control bytes cannot corrupt the header.
func attachmentDisposition(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}

func requestPassword(c *gin.Context) string {
	if pw := c.GetHeader("X-Archive-Password"); pw != "" {
		return pw
	}
	if pw := c.Query("password"); pw != "" {
		return pw
	}
	return c.PostForm("password")
}

func clientOf(c *gin.Context) gateway.Client {
	return gateway.Client{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
