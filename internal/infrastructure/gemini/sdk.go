package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/basel-ax/illustrator/internal/domain"
)

// SDKClient generates images through the official Google GenAI SDK.
type SDKClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ domain.ImageGenerator = (*SDKClient)(nil)

// NewSDKClient creates a GenAI-backed generator. baseURL overrides the API
// host (the SDK appends the version and model path itself) and is mostly
// useful against a local fake.
func NewSDKClient(ctx context.Context, apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) (*SDKClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if baseURL != "" && baseURL != DefaultBaseURL {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: sdkHost(baseURL)}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &SDKClient{
		client: client,
		model:  model,
		logger: logger.Named("gemini-sdk"),
	}, nil
}

// GenerateImage implements domain.ImageGenerator. The SDK returns raw image
// bytes, which are re-encoded so both backends share one contract.
func (c *SDKClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseModalities: []string{string(genai.ModalityText), string(genai.ModalityImage)},
		},
	)
	if err != nil {
		return "", classifySDKError(err)
	}

	var text []string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p == nil {
				continue
			}
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				c.logger.Debug("image part received",
					zap.String("mime_type", p.InlineData.MIMEType),
					zap.Int("bytes", len(p.InlineData.Data)),
				)
				return base64.StdEncoding.EncodeToString(p.InlineData.Data), nil
			}
			if p.Text != "" {
				text = append(text, p.Text)
			}
		}
	}

	return "", &domain.NoImageDataError{Text: strings.Join(text, " ")}
}

func classifySDKError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &domain.APIError{StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &domain.APIError{StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return &domain.TransportError{Service: "gemini", Err: err}
}

// sdkHost strips the version and models path from a REST base URL.
func sdkHost(baseURL string) string {
	host := strings.TrimRight(baseURL, "/")
	host = strings.TrimSuffix(host, "/models")
	if i := strings.LastIndex(host, "/"); i > len("https://") {
		if seg := host[i+1:]; strings.HasPrefix(seg, "v1") {
			host = host[:i]
		}
	}
	return host + "/"
}
