package storage

import (
	"bytes"
	"context"
	"fmt"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseStore keeps blobs in a Supabase storage bucket. The client library
// does not take contexts; calls are bounded by its own HTTP timeouts.
type SupabaseStore struct {
	client *storage_go.Client
	bucket string
}

func NewSupabaseStore(url, key, bucket string) *SupabaseStore {
	return &SupabaseStore{
		client: storage_go.NewClient(url, key, nil),
		bucket: bucket,
	}
}

func (s *SupabaseStore) Put(_ context.Context, id string, data []byte) error {
	_, err := s.client.UploadFile(s.bucket, id, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("supabase put %s: %w", id, err)
	}
	return nil
}

func (s *SupabaseStore) Get(_ context.Context, id string) ([]byte, error) {
	data, err := s.client.DownloadFile(s.bucket, id)
	if err != nil {
		return nil, fmt.Errorf("supabase get %s: %w", id, err)
	}
	return data, nil
}

func (s *SupabaseStore) Delete(_ context.Context, id string) error {
	_, err := s.client.RemoveFile(s.bucket, []string{id})
	if err != nil {
		return fmt.Errorf("supabase delete %s: %w", id, err)
	}
	return nil
}
