package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basel-ax/illustrator/internal/domain"
)

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return LoadFrom(context.Background(), envconfig.MapLookuper(env))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"GEMINI_API_KEY":            "g-key",
		"SUPABASE_SERVICE_ROLE_KEY": "s-key",
	})
	require.NoError(t, err)

	assert.Equal(t, "g-key", cfg.Gemini.APIKey)
	assert.Equal(t, GeminiBackendREST, cfg.Gemini.Backend)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models", cfg.Gemini.BaseURL)
	assert.Equal(t, "gemini-2.5-flash-image", cfg.Gemini.Model)
	assert.Equal(t, StorageSupabase, cfg.Storage.Backend)
	assert.Equal(t, "lavie-illustrations", cfg.Storage.SupabaseBucket)
	assert.Equal(t, ManifestFile, cfg.Manifest.Backend)
	assert.Equal(t, 3*time.Second, cfg.Run.InterItemDelay)
	assert.False(t, cfg.Run.RetryTextOnly)
	assert.Equal(t, 5432, cfg.DB.Port)
}

func TestLoadMissingCredentials(t *testing.T) {
	_, err := load(t, map[string]string{})

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"GEMINI_API_KEY", "SUPABASE_SERVICE_ROLE_KEY"}, cfgErr.Missing)
}

func TestLoadStorageBackends(t *testing.T) {
	_, err := load(t, map[string]string{
		"GEMINI_API_KEY":  "g-key",
		"STORAGE_BACKEND": "gcs",
	})
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"GCS_BUCKET"}, cfgErr.Missing)

	cfg, err := load(t, map[string]string{
		"GEMINI_API_KEY":  "g-key",
		"STORAGE_BACKEND": "GCS",
		"GCS_BUCKET":      "illustrations",
	})
	require.NoError(t, err)
	assert.Equal(t, StorageGCS, cfg.Storage.Backend)

	_, err = load(t, map[string]string{
		"GEMINI_API_KEY":  "g-key",
		"STORAGE_BACKEND": "s3",
	})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, `unsupported STORAGE_BACKEND "s3"`)
}

func TestLoadPostgresManifestRequiresDB(t *testing.T) {
	_, err := load(t, map[string]string{
		"GEMINI_API_KEY":            "g-key",
		"SUPABASE_SERVICE_ROLE_KEY": "s-key",
		"MANIFEST_BACKEND":          "postgres",
		"DB_HOST":                   "localhost",
	})
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"DB_USER", "DB_PASSWORD", "DB_NAME"}, cfgErr.Missing)

	cfg, err := load(t, map[string]string{
		"GEMINI_API_KEY":            "g-key",
		"SUPABASE_SERVICE_ROLE_KEY": "s-key",
		"MANIFEST_BACKEND":          "postgres",
		"DB_HOST":                   "db",
		"DB_USER":                   "app",
		"DB_PASSWORD":               "secret",
		"DB_NAME":                   "illustrations",
		"DB_PORT":                   "6543",
	})
	require.NoError(t, err)
	assert.Equal(t, "host=db port=6543 user=app password=secret dbname=illustrations sslmode=disable", cfg.GetDSN())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"GEMINI_API_KEY":            "g-key",
		"SUPABASE_SERVICE_ROLE_KEY": "s-key",
		"GEMINI_BACKEND":            "sdk",
		"GEMINI_BASE_URL":           "http://localhost:9999/models/",
		"SUPABASE_URL":              "http://localhost:54321/",
		"INTER_ITEM_DELAY":          "250ms",
		"RETRY_TEXT_ONLY":           "true",
		"MANIFEST_BACKEND":          "none",
	})
	require.NoError(t, err)

	assert.Equal(t, GeminiBackendSDK, cfg.Gemini.Backend)
	assert.Equal(t, "http://localhost:9999/models", cfg.Gemini.BaseURL)
	assert.Equal(t, "http://localhost:54321", cfg.Storage.SupabaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Run.InterItemDelay)
	assert.True(t, cfg.Run.RetryTextOnly)
	assert.Equal(t, ManifestNone, cfg.Manifest.Backend)
}

func TestDecodeSkipsValidation(t *testing.T) {
	cfg, err := Decode(context.Background(), envconfig.MapLookuper(map[string]string{
		"MANIFEST_BACKEND": "SQLite",
	}))
	require.NoError(t, err)
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Equal(t, ManifestSQLite, cfg.Manifest.Backend)
	assert.Error(t, cfg.Validate())
}
