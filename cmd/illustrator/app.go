package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/basel-ax/illustrator/internal/catalog"
	"github.com/basel-ax/illustrator/internal/config"
	"github.com/basel-ax/illustrator/internal/domain"
	"github.com/basel-ax/illustrator/internal/infrastructure/gcs"
	"github.com/basel-ax/illustrator/internal/infrastructure/gemini"
	"github.com/basel-ax/illustrator/internal/infrastructure/supabase"
	"github.com/basel-ax/illustrator/internal/metrics"
	"github.com/basel-ax/illustrator/internal/repository"
	"github.com/basel-ax/illustrator/internal/service"
)

// app holds the wired components of one process.
type app struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	manifest repository.ManifestRepository
	metrics  *metrics.Recorder
	service  *service.IllustrationService
	closers  []func() error
}

// newApp wires catalog, manifest, generator and blob store from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	cat, err := loadCatalog(cfg.Run.CatalogPath)
	if err != nil {
		return nil, err
	}
	a.catalog = cat

	manifest, err := openManifest(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.manifest = manifest
	a.closers = append(a.closers, manifest.Close)

	gen, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	store, closeStore, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	a.service = service.NewIllustrationService(cat, gen, store,
		service.WithManifest(manifest),
		service.WithMetrics(a.metrics),
		service.WithLogger(logger),
		service.WithInterItemDelay(cfg.Run.InterItemDelay),
		service.WithRetryTextOnly(cfg.Run.RetryTextOnly),
	)
	return a, nil
}

// writeMetrics dumps the registry when a metrics file is configured.
func (a *app) writeMetrics(logger *zap.Logger) {
	if a.cfg.Run.MetricsFile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.Run.MetricsFile); err != nil {
		logger.Warn("failed to write metrics file", zap.String("path", a.cfg.Run.MetricsFile), zap.Error(err))
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func openManifest(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.ManifestRepository, error) {
	switch cfg.Manifest.Backend {
	case config.ManifestFile:
		logger.Debug("using file manifest", zap.String("path", cfg.Manifest.Path))
		return repository.NewFileManifestRepository(cfg.Manifest.Path)

	case config.ManifestSQLite:
		logger.Debug("using sqlite manifest", zap.String("path", cfg.Manifest.SQLitePath))
		db, err := repository.OpenSQLite(cfg.Manifest.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite manifest: %w", err)
		}
		repo := repository.NewSQLiteManifestRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil

	case config.ManifestPostgres:
		logger.Info("initializing database connection",
			zap.String("host", cfg.DB.Host),
			zap.String("database", cfg.DB.Database),
		)
		db, err := repository.OpenPostgres(cfg.GetDSN(), cfg.DB.MaxOpenConns, cfg.DB.MaxIdleConns, cfg.DB.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := repository.NewPostgresManifestRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		logger.Info("database connection established")
		return repo, nil

	case config.ManifestNone:
		return repository.NopManifestRepository{}, nil

	default:
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("unsupported MANIFEST_BACKEND %q", cfg.Manifest.Backend)}
	}
}

func newGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (domain.ImageGenerator, error) {
	g := cfg.Gemini
	switch g.Backend {
	case config.GeminiBackendSDK:
		return gemini.NewSDKClient(ctx, g.APIKey, g.BaseURL, g.Model, g.Timeout, logger)
	case config.GeminiBackendREST, "":
		return gemini.NewClient(g.APIKey, g.BaseURL, g.Model, g.Timeout, logger), nil
	default:
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("unsupported GEMINI_BACKEND %q", g.Backend)}
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (domain.BlobStore, func() error, error) {
	s := cfg.Storage
	switch s.Backend {
	case config.StorageGCS:
		store, err := gcs.NewStorage(ctx, s.GCSBucket, s.UploadTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StorageSupabase, "":
		return supabase.NewStorage(s.SupabaseURL, s.SupabaseBucket, s.SupabaseAPIKey, s.UploadTimeout, logger), nil, nil
	default:
		return nil, nil, &domain.ConfigurationError{Reason: fmt.Sprintf("unsupported STORAGE_BACKEND %q", s.Backend)}
	}
}
