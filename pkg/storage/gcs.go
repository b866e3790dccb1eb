package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	gcs "cloud.google.com/go/storage"
)

// GCSStore is a FileStore on Google Cloud Storage. Paths map to object
// names under an optional prefix.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS-backed FileStore using application default
// credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: create gcs client: %w", err)
	}
	return NewGCSWithClient(client, bucket, prefix), nil
}

// NewGCSWithClient wraps an existing client.
func NewGCSWithClient(client *gcs.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) object(p string) (*gcs.ObjectHandle, error) {
	c, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	name := c
	if s.prefix != "" {
		name = s.prefix + "/" + c
	}
	return s.client.Bucket(s.bucket).Object(name), nil
}

func (s *GCSStore) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	obj, err := s.object(p)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", p, os.ErrNotExist)
		}
		return nil, err
	}
	return r, nil
}

// Write returns the object writer; the upload is committed by Close.
func (s *GCSStore) Write(ctx context.Context, p string) (io.WriteCloser, error) {
	obj, err := s.object(p)
	if err != nil {
		return nil, err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentTypeFor(p)
	return w, nil
}

func (s *GCSStore) Delete(ctx context.Context, p string) error {
	obj, err := s.object(p)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, p string) (bool, error) {
	obj, err := s.object(p)
	if err != nil {
		return false, err
	}
	switch _, err := obj.Attrs(ctx); {
	case err == nil:
		return true, nil
	case errors.Is(err, gcs.ErrObjectNotExist):
		return false, nil
	default:
		return false, err
	}
}

var _ FileStore = (*GCSStore)(nil)
