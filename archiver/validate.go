package archiver

import (
	"path"
	"strings"

	"github.com/basit/packshare-backend/apperr"
)

// allowedExtensions is the upload allow-list. Anything not listed is rejected
// before scanning, regardless of declared content type.
var allowedExtensions = map[string]bool{
	".7z": true, ".avi": true, ".bmp": true, ".csv": true, ".doc": true,
	".docx": true, ".epub": true, ".gif": true, ".gz": true, ".heic": true,
	".jpeg": true, ".jpg": true, ".json": true, ".md": true, ".mkv": true,
	".mov": true, ".mp3": true, ".mp4": true, ".odp": true, ".ods": true,
	".odt": true, ".pdf": true, ".png": true, ".ppt": true, ".pptx": true,
	".rar": true, ".rtf": true, ".svg": true, ".tar": true, ".txt": true,
	".wav": true, ".webm": true, ".webp": true, ".xls": true, ".xlsx": true,
	".xml": true, ".yaml": true, ".yml": true, ".zip": true,
}

// blockedMimeTypes rejects declared content types that the extension list
// cannot catch (renamed executables with a benign extension still carry the
// client's sniffed type in some browsers).
var blockedMimeTypes = map[string]bool{
	"application/x-msdownload":                      true,
	"application/x-executable":                      true,
	"application/x-dosexec":                         true,
	"application/x-sh":                              true,
	"application/x-mach-binary":                     true,
	"application/vnd.microsoft.portable-executable": true,
}

// validate enforces the upload constraints: non-empty batch, allow-listed
// extension and MIME type, per-file size ceiling, and clean unique relative
// paths. The first offending file fails the whole batch; nothing is partially
// accepted.
func validate(files []UploadFile, maxFileSize int64) error {
	if len(files) == 0 {
		return apperr.New(apperr.KindValidation, "no files in upload")
	}
	seen := make(map[string]bool, len(files))
	for i := range files {
		file := &files[i]
		cleaned, ok := cleanRelativePath(file.Path)
		if !ok {
			return apperr.New(apperr.KindValidation, "file %q has an invalid path", file.Path)
		}
		file.Path = cleaned

		ext := strings.ToLower(path.Ext(cleaned))
		if !allowedExtensions[ext] {
			return apperr.New(apperr.KindValidation, "file %q has a disallowed type %q", file.Name, ext)
		}
		if blockedMimeTypes[strings.ToLower(file.MimeType)] {
			return apperr.New(apperr.KindValidation, "file %q has a disallowed content type %q", file.Name, file.MimeType)
		}
		if int64(len(file.Data)) > maxFileSize {
			return apperr.New(apperr.KindValidation, "file %q exceeds the size limit", file.Name)
		}
		if seen[cleaned] {
			return apperr.New(apperr.KindValidation, "duplicate path %q in upload", cleaned)
		}
		seen[cleaned] = true
	}
	return nil
}

// cleanRelativePath normalizes a slash-delimited relative path and rejects
// absolute paths and traversal.
func cleanRelativePath(p string) (string, bool) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", false
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." ||
		strings.HasPrefix(cleaned, "/") || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
