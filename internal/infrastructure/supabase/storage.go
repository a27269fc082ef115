package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/basel-ax/illustrator/internal/domain"
)

// Storage uploads images to a Supabase Storage bucket over its REST API
type Storage struct {
	httpClient *http.Client
	baseURL    string
	bucket     string
	apiKey     string
	logger     *zap.Logger
}

var _ domain.BlobStore = (*Storage)(nil)

// NewStorage creates a new Supabase Storage client. apiKey is the project's
// service_role key.
func NewStorage(baseURL, bucket, apiKey string, timeout time.Duration, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
		apiKey:  apiKey,
		logger:  logger.Named("supabase"),
	}
}

// Upload decodes payload and stores it at {id}.png, overwriting any
// existing object.
func (s *Storage) Upload(ctx context.Context, id, payload string) (string, error) {
	data, err := domain.DecodeImagePayload(payload)
	if err != nil {
		return "", err
	}

	key := escapeKey(domain.ObjectKey(id))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key),
		bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Content-Type", "image/png")
	httpReq.Header.Set("x-upsert", "true")

	start := time.Now()
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", &domain.TransportError{Service: "supabase", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return "", &domain.UploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	s.logger.Debug("object stored",
		zap.String("key", key),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return s.PublicURL(id), nil
}

// PublicURL returns the public retrieval URL for an identifier. It is
// derived locally; the API does not return it.
func (s *Storage) PublicURL(id string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, escapeKey(domain.ObjectKey(id)))
}

// escapeKey escapes each path segment and keeps the separators.
func escapeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}
