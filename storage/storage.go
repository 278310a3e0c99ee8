// Package storage abstracts the object store holding encrypted bundle blobs.
// Blobs are opaque ciphertext keyed by id; the metadata rows reference them
// through Archive.BlobID.
package storage

import "context"

type BlobStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}
