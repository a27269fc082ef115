package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/basel-ax/illustrator/internal/catalog"
	"github.com/basel-ax/illustrator/internal/domain"
	"github.com/basel-ax/illustrator/internal/metrics"
	"github.com/basel-ax/illustrator/internal/repository"
)

// DefaultInterItemDelay spaces out consecutive generation requests.
const DefaultInterItemDelay = 3 * time.Second

// IllustrationService drives the resolve, generate, upload pipeline over
// the working set, one illustration at a time.
type IllustrationService struct {
	catalog   *catalog.Catalog
	generator domain.ImageGenerator
	store     domain.BlobStore
	manifest  repository.ManifestRepository
	metrics   *metrics.Recorder
	logger    *zap.Logger

	delay         time.Duration
	retryTextOnly bool
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time
	newRunID      func() string
}

// Option configures an IllustrationService.
type Option func(*IllustrationService)

// WithManifest persists per-item state to repo.
func WithManifest(repo repository.ManifestRepository) Option {
	return func(s *IllustrationService) { s.manifest = repo }
}

// WithMetrics records run statistics on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *IllustrationService) { s.metrics = rec }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *IllustrationService) { s.logger = logger }
}

// WithInterItemDelay sets the pause between consecutive items.
func WithInterItemDelay(d time.Duration) Option {
	return func(s *IllustrationService) { s.delay = d }
}

// WithRetryTextOnly allows one extra generation attempt when the model
// answered with text but no image.
func WithRetryTextOnly(enabled bool) Option {
	return func(s *IllustrationService) { s.retryTextOnly = enabled }
}

// WithSleeper replaces the delay implementation.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *IllustrationService) { s.sleep = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *IllustrationService) { s.now = now }
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(fn func() string) Option {
	return func(s *IllustrationService) { s.newRunID = fn }
}

// NewIllustrationService creates a new illustration service
func NewIllustrationService(cat *catalog.Catalog, gen domain.ImageGenerator, store domain.BlobStore, opts ...Option) *IllustrationService {
	s := &IllustrationService{
		catalog:   cat,
		generator: gen,
		store:     store,
		manifest:  repository.NopManifestRepository{},
		metrics:   metrics.New(),
		logger:    zap.NewNop(),
		delay:     DefaultInterItemDelay,
		sleep:     sleepContext,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOptions narrows or changes a single run.
type RunOptions struct {
	// Only keeps identifiers under any of these prefixes
	Only []string
	// Force ignores manifest successes. The static already-generated list
	// still applies.
	Force bool
	// DryRun computes the working set and stops
	DryRun bool
}

// WorkingSet returns the identifiers a run would process, in catalog order.
func (s *IllustrationService) WorkingSet(ctx context.Context, opts RunOptions) ([]string, error) {
	var skip map[string]struct{}
	if !opts.Force {
		done, err := s.manifest.Succeeded(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		skip = done
	}
	return catalog.Filter(s.catalog.WorkingSet(skip), opts.Only), nil
}

// Run processes the working set. Item failures are recorded in the report
// and never stop the run. The returned error is non-nil only when the run
// could not start or was cancelled; the report then covers the items
// attempted so far.
func (s *IllustrationService) Run(ctx context.Context, opts RunOptions) (*domain.Report, error) {
	report := &domain.Report{
		RunID:     s.newRunID(),
		StartedAt: s.now(),
		Defined:   s.catalog.Len(),
		Excluded:  s.catalog.ExcludedCount(),
		DryRun:    opts.DryRun,
	}
	logger := s.logger.With(zap.String("run_id", report.RunID))

	ws, err := s.WorkingSet(ctx, opts)
	if err != nil {
		return nil, err
	}
	report.WorkingSet = ws
	s.metrics.SetWorkingSet(len(ws))

	logger.Info("working set computed",
		zap.Int("defined", report.Defined),
		zap.Int("already_generated", report.Excluded),
		zap.Int("selected", len(ws)),
	)

	if len(ws) == 0 {
		logger.Info("all images already generated, nothing to do")
		return s.finish(report), nil
	}
	if opts.DryRun {
		return s.finish(report), nil
	}

	for i, id := range ws {
		if i > 0 && s.delay > 0 {
			logger.Debug("waiting before next request", zap.Duration("delay", s.delay))
			if err := s.sleep(ctx, s.delay); err != nil {
				logger.Warn("run interrupted", zap.Int("attempted", i), zap.Int("remaining", len(ws)-i))
				return s.finish(report), err
			}
		}
		if err := ctx.Err(); err != nil {
			return s.finish(report), err
		}

		res := s.process(ctx, logger, report.RunID, id)
		report.Results = append(report.Results, res)
	}

	return s.finish(report), nil
}

func (s *IllustrationService) finish(report *domain.Report) *domain.Report {
	report.FinishedAt = s.now()
	s.metrics.MarkRunFinished(string(report.Outcome()), report.FinishedAt)
	return report
}

func (s *IllustrationService) process(ctx context.Context, logger *zap.Logger, runID, id string) domain.Result {
	start := s.now()
	res := domain.Result{ID: id}
	logger = logger.With(zap.String("id", id))

	fail := func(stage string, err error) domain.Result {
		res.Err = err
		res.Duration = s.now().Sub(start)
		s.metrics.IncItem("failed")
		s.metrics.IncStageError(stage, errorKind(err))
		logger.Error("illustration failed", zap.String("stage", stage), zap.Error(err))
		if merr := s.manifest.MarkFailed(context.WithoutCancel(ctx), id, err.Error(), runID); merr != nil {
			logger.Warn("failed to record failure in manifest", zap.Error(merr))
		}
		return res
	}

	prompt, err := s.catalog.Resolve(id)
	if err != nil {
		return fail("resolve", err)
	}

	logger.Info("generating")
	s.transition(ctx, logger, runID, id, domain.StatusGenerating)

	genStart := s.now()
	payload, attempts, err := s.generate(ctx, logger, prompt)
	res.Attempts = attempts
	s.metrics.ObserveStage("generate", s.now().Sub(genStart))
	if err != nil {
		return fail("generate", err)
	}

	logger.Info("uploading")
	s.transition(ctx, logger, runID, id, domain.StatusUploading)

	upStart := s.now()
	url, err := s.store.Upload(ctx, id, payload)
	s.metrics.ObserveStage("upload", s.now().Sub(upStart))
	if err != nil {
		return fail("upload", err)
	}

	res.URL = url
	res.Duration = s.now().Sub(start)
	s.metrics.IncItem("succeeded")
	if err := s.manifest.MarkSucceeded(context.WithoutCancel(ctx), id, url, runID); err != nil {
		logger.Warn("failed to record success in manifest", zap.Error(err))
	}
	logger.Info("illustration generated", zap.String("url", url), zap.Duration("elapsed", res.Duration))

	return res
}

// generate calls the generator once, or twice when a text-only answer is
// retried.
func (s *IllustrationService) generate(ctx context.Context, logger *zap.Logger, prompt string) (string, int, error) {
	payload, err := s.generator.GenerateImage(ctx, prompt)
	if err == nil || !s.retryTextOnly {
		return payload, 1, err
	}

	var noImg *domain.NoImageDataError
	if !errors.As(err, &noImg) || !noImg.TextOnly() {
		return "", 1, err
	}

	logger.Warn("model returned text without an image, retrying once", zap.String("text", noImg.Text))
	if s.delay > 0 {
		if serr := s.sleep(ctx, s.delay); serr != nil {
			return "", 1, err
		}
	}
	payload, err = s.generator.GenerateImage(ctx, prompt)
	return payload, 2, err
}

func (s *IllustrationService) transition(ctx context.Context, logger *zap.Logger, runID, id string, status domain.Status) {
	if err := s.manifest.UpdateStatus(ctx, id, status, runID); err != nil {
		logger.Warn("failed to record status in manifest", zap.String("status", string(status)), zap.Error(err))
	}
}

func errorKind(err error) string {
	var (
		transportErr *domain.TransportError
		apiErr       *domain.APIError
		uploadErr    *domain.UploadError
		noImgErr     *domain.NoImageDataError
		unknownErr   *domain.UnknownIdentifierError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &uploadErr):
		return "upload"
	case errors.As(err, &noImgErr):
		return "no_image"
	case errors.As(err, &unknownErr):
		return "unknown_id"
	default:
		return "other"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
