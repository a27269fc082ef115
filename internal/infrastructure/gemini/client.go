package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/basel-ax/illustrator/internal/domain"
)

const (
	// DefaultBaseURL is the Gemini REST models endpoint
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	// DefaultModel is the image-capable Gemini model
	DefaultModel = "gemini-2.5-flash-image"

	modalityText  = "TEXT"
	modalityImage = "IMAGE"
)

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Client calls the Gemini generateContent REST endpoint
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	logger     *zap.Logger
}

var _ domain.ImageGenerator = (*Client)(nil)

// NewClient creates a new Gemini REST client. Empty baseURL and model fall
// back to the public endpoint and the default image model.
func NewClient(apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		model:   model,
		apiKey:  apiKey,
		logger:  logger.Named("gemini"),
	}
}

// GenerateImage requests text and image modalities for prompt and returns
// the first inline image payload, still base64-encoded.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateContentRequest{
		Contents: []content{{
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{modalityText, modalityImage},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &domain.TransportError{Service: "gemini", Err: redact(err, c.apiKey)}
	}
	defer resp.Body.Close()

	c.logger.Debug("generateContent responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &domain.APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	// a body cut off mid-transfer is a transport failure, not bad JSON
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.TransportError{Service: "gemini", Err: redact(err, c.apiKey)}
	}

	var result generateContentResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return extractImage(result)
}

func (c *Client) endpoint() string {
	q := url.Values{}
	q.Set("key", c.apiKey)
	return fmt.Sprintf("%s/%s:generateContent?%s", c.baseURL, url.PathEscape(c.model), q.Encode())
}

// extractImage scans candidates and their parts in order.
func extractImage(result generateContentResponse) (string, error) {
	var text bytes.Buffer
	for _, cand := range result.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return p.InlineData.Data, nil
			}
			if p.Text != "" {
				if text.Len() > 0 {
					text.WriteByte(' ')
				}
				text.WriteString(p.Text)
			}
		}
	}
	return "", &domain.NoImageDataError{Text: text.String()}
}

// redact keeps the API key, which travels in the query string, out of
// error messages produced by net/http.
func redact(err error, key string) error {
	var urlErr *url.Error
	if key == "" || !errors.As(err, &urlErr) {
		return err
	}
	u, perr := url.Parse(urlErr.URL)
	if perr != nil {
		return err
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
}
