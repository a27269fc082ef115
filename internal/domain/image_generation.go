package domain

import (
	"context"
	"encoding/base64"
	"fmt"
)

// ImageGenerator turns a composed prompt into a base64-encoded image.
type ImageGenerator interface {
	// GenerateImage issues exactly one request to the generation service
	// and returns the first inline image payload found in the response.
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// BlobStore stores generated images under a key derived from the
// illustration identifier.
type BlobStore interface {
	// Upload decodes the payload and stores it, overwriting any existing
	// object at the same key. It returns the public URL of the object.
	Upload(ctx context.Context, id, payload string) (string, error)
}

// ObjectKey returns the storage key for an illustration identifier.
func ObjectKey(id string) string {
	return id + ".png"
}

// DecodeImagePayload decodes a standard base64 image payload.
func DecodeImagePayload(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return data, nil
}
