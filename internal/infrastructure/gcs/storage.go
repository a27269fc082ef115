package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/basel-ax/illustrator/internal/domain"
)

const publicHost = "https://storage.googleapis.com"

var errNoClient = errors.New("gcs storage has no client")

// Storage uploads images to a Google Cloud Storage bucket. Credentials come
// from Application Default Credentials.
type Storage struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	name    string
	timeout time.Duration
	logger  *zap.Logger
}

var _ domain.BlobStore = (*Storage)(nil)

// NewStorage creates a GCS-backed blob store for bucketName. opts are
// passed to the storage client, e.g. to target an emulator.
func NewStorage(ctx context.Context, bucketName string, timeout time.Duration, logger *zap.Logger, opts ...option.ClientOption) (*Storage, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return NewStorageWithClient(client, bucketName, timeout, logger), nil
}

// NewStorageWithClient wraps an existing client.
func NewStorageWithClient(client *storage.Client, bucketName string, timeout time.Duration, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{
		client:  client,
		name:    bucketName,
		timeout: timeout,
		logger:  logger.Named("gcs"),
	}
	if client != nil {
		s.bucket = client.Bucket(bucketName)
	}
	return s
}

// Upload decodes payload and writes it to {id}.png. Object writes replace
// any previous generation of the object.
func (s *Storage) Upload(ctx context.Context, id, payload string) (string, error) {
	data, err := domain.DecodeImagePayload(payload)
	if err != nil {
		return "", err
	}
	if s.bucket == nil {
		return "", errNoClient
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	key := domain.ObjectKey(id)
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "image/png"

	start := time.Now()
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", classify(err)
	}
	if err := w.Close(); err != nil {
		return "", classify(err)
	}

	s.logger.Debug("object stored",
		zap.String("bucket", s.name),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return s.PublicURL(id), nil
}

// PublicURL returns the public URL of the object for id.
func (s *Storage) PublicURL(id string) string {
	return fmt.Sprintf("%s/%s/%s", publicHost, s.name, domain.ObjectKey(id))
}

// Close releases the underlying client.
func (s *Storage) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		body := gErr.Message
		if body == "" {
			body = gErr.Body
		}
		return &domain.UploadError{StatusCode: gErr.Code, Body: body}
	}
	return &domain.TransportError{Service: "gcs", Err: err}
}
