// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// VerifyBucket reads the bucket attributes at startup so a bad name or
	// missing permission fails fast.
	VerifyBucket bool
}

// writerFactory opens an object writer; tests replace it.
type writerFactory func(ctx context.Context, object, contentType string) io.WriteCloser

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	bucket    string
	newWriter writerFactory
	closer    func() error
}

// Open creates a client with Application Default Credentials and wraps it.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*BlobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if cfg.VerifyBucket && cfg.Bucket != "" {
		if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("close gcs client after bucket check failed", zap.Error(closeErr))
			}
			return nil, fmt.Errorf("gcs bucket %q attributes: %w", cfg.Bucket, err)
		}
	}
	store, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store.closer = client.Close
	return store, nil
}

// New wraps an existing client.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	bucket := client.Bucket(cfg.Bucket)
	return &BlobStore{
		bucket: cfg.Bucket,
		newWriter: func(ctx context.Context, object, contentType string) io.WriteCloser {
			w := bucket.Object(object).NewWriter(ctx)
			if contentType != "" {
				w.ContentType = contentType
			}
			return w
		},
	}, nil
}

// PutObject uploads data and returns a gs:// URI. The upload is committed
// only when the writer closes cleanly.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	object := strings.TrimPrefix(strings.TrimSpace(path), "/")
	if object == "" {
		return "", errors.New("path is required")
	}
	writer := s.newWriter(ctx, object, contentType)
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("upload %s: %w (close writer: %v)", object, err, closeErr)
		}
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// Close releases the client opened by Open.
func (s *BlobStore) Close() error {
	if s.closer == nil {
		return nil
	}
	if err := s.closer(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
