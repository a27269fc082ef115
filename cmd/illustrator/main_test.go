package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/basel-ax/illustrator/internal/config"
	"github.com/basel-ax/illustrator/internal/domain"
	"github.com/basel-ax/illustrator/internal/infrastructure/gemini"
	"github.com/basel-ax/illustrator/internal/infrastructure/supabase"
	"github.com/basel-ax/illustrator/internal/repository"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(domain.OutcomeNoop))
	assert.Equal(t, exitOK, exitCode(domain.OutcomeSucceeded))
	assert.Equal(t, exitPartial, exitCode(domain.OutcomePartial))
	assert.Equal(t, exitFailed, exitCode(domain.OutcomeFailed))
}

func TestConfigFailureIncludesUsage(t *testing.T) {
	err := configFailure(&domain.ConfigurationError{Missing: []string{"GEMINI_API_KEY"}})

	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitFatal, exitErr.code)
	assert.Contains(t, err.Error(), "missing required settings: GEMINI_API_KEY")
	assert.Contains(t, err.Error(), "SUPABASE_SERVICE_ROLE_KEY=your_key")

	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	plain := configFailure(errors.New("disk full"))
	assert.Equal(t, "disk full", plain.Error())
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(true, false)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	l, err = newLogger(false, true)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}

func TestWiringSelectsBackends(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Gemini:  config.GeminiConfig{APIKey: "k", Backend: config.GeminiBackendREST},
		Storage: config.StorageConfig{Backend: config.StorageSupabase, SupabaseURL: "http://localhost", SupabaseBucket: "b", SupabaseAPIKey: "s"},
	}

	gen, err := newGenerator(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &gemini.Client{}, gen)

	store, closeStore, err := newBlobStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &supabase.Storage{}, store)
	assert.Nil(t, closeStore)

	cfg.Manifest = config.ManifestConfig{Backend: config.ManifestSQLite, SQLitePath: filepath.Join(t.TempDir(), "m.db")}
	repo, err := openManifest(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &repository.SQLiteManifestRepository{}, repo)
	require.NoError(t, repo.Close())

	cfg.Manifest = config.ManifestConfig{Backend: "etcd"}
	_, err = openManifest(ctx, cfg, zap.NewNop())
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestWriteManifest(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.NewFileManifestRepository(filepath.Join(t.TempDir(), "m.yaml"))
	require.NoError(t, err)
	require.NoError(t, repo.MarkSucceeded(ctx, "tools/wall", "https://cdn/tools/wall.png", "r1"))
	require.NoError(t, repo.MarkFailed(ctx, "tabs/home", "quota exceeded", "r1"))

	var buf bytes.Buffer
	require.NoError(t, writeManifest(ctx, &buf, repo))

	var doc struct {
		Records []domain.ManifestRecord `yaml:"records"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Records, 2)
	assert.Equal(t, "tabs/home", doc.Records[0].ID)
	assert.Equal(t, domain.StatusFailed, doc.Records[0].Status)
	assert.Equal(t, "tools/wall", doc.Records[1].ID)
	assert.Equal(t, "https://cdn/tools/wall.png", doc.Records[1].URL)
}
