package archiver

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Pack bundles the files into a single zip artifact in memory, each member
// under its relative path.
func Pack(files []UploadFile) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	for _, file := range files {
		w, err := zw.Create(file.Path)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", file.Path, err)
		}
		if _, err := w.Write(file.Data); err != nil {
			return nil, fmt.Errorf("pack %s: %w", file.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractMember pulls a single member out of a packed bundle.
func ExtractMember(bundle []byte, path string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	for _, member := range zr.File {
		if member.Name != path {
			continue
		}
		rc, err := member.Open()
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", path, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("unpack %s: member not found", path)
}
