package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/basel-ax/illustrator/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", srv.URL+"/v1beta/models", "", 5*time.Second, zap.NewNop())
}

func TestGenerateImageRequestShape(t *testing.T) {
	var got generateContentRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash-image:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"aGVsbG8="}}]}}]}`)
	})

	payload, err := client.GenerateImage(context.Background(), "Style. A lotus")
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", payload)

	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 1)
	assert.Equal(t, "Style. A lotus", got.Contents[0].Parts[0].Text)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, got.GenerationConfig.ResponseModalities)
}

func TestGenerateImagePicksFirstImagePart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[
			{"content":{"parts":[{"text":"Here is your image"}]}},
			{"content":{"parts":[
				{"text":"second"},
				{"inlineData":{"mimeType":"image/png","data":"Zmlyc3Q="}},
				{"inlineData":{"mimeType":"image/png","data":"c2Vjb25k"}}
			]}}
		]}`)
	})

	payload, err := client.GenerateImage(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "Zmlyc3Q=", payload)
}

func TestGenerateImageErrors(t *testing.T) {
	t.Run("api error carries status and body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"quota exceeded"}}`)
		})

		_, err := client.GenerateImage(context.Background(), "p")
		var apiErr *domain.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Contains(t, apiErr.Body, "quota exceeded")
	})

	t.Run("text only response", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"I can only describe it"}]}}]}`)
		})

		_, err := client.GenerateImage(context.Background(), "p")
		var noImg *domain.NoImageDataError
		require.ErrorAs(t, err, &noImg)
		assert.True(t, noImg.TextOnly())
		assert.Equal(t, "I can only describe it", noImg.Text)
	})

	t.Run("no candidates", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"candidates":[]}`)
		})

		_, err := client.GenerateImage(context.Background(), "p")
		var noImg *domain.NoImageDataError
		require.ErrorAs(t, err, &noImg)
		assert.False(t, noImg.TextOnly())
	})

	t.Run("empty inline data is not an image", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":""}}]}}]}`)
		})

		_, err := client.GenerateImage(context.Background(), "p")
		var noImg *domain.NoImageDataError
		require.ErrorAs(t, err, &noImg)
	})

	t.Run("malformed body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"candidates":`)
		})

		_, err := client.GenerateImage(context.Background(), "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode response")
	})
}

func TestGenerateImageTruncatedBodyIsTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"aGVs`)
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	})

	_, err := client.GenerateImage(context.Background(), "p")
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "gemini", te.Service)
	assert.NotContains(t, err.Error(), "test-key")
}

func TestGenerateImageTransportErrorRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client := NewClient("super-secret", baseURL, "", time.Second, nil)
	_, err := client.GenerateImage(context.Background(), "p")

	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "gemini", te.Service)
	assert.False(t, strings.Contains(err.Error(), "super-secret"), err.Error())
}

func TestSDKHost(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080/", sdkHost("http://127.0.0.1:8080/v1beta/models"))
	assert.Equal(t, "https://example.test/", sdkHost("https://example.test/models/"))
	assert.Equal(t, "http://h/", sdkHost("http://h"))
}
