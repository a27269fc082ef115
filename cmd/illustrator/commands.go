package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/basel-ax/illustrator/internal/config"
	"github.com/basel-ax/illustrator/internal/domain"
	"github.com/basel-ax/illustrator/internal/repository"
	"github.com/basel-ax/illustrator/internal/service"
)

var runFlags struct {
	only        []string
	dryRun      bool
	force       bool
	schedule    string
	catalog     string
	metricsFile string
}

var listFlags struct {
	only    []string
	force   bool
	catalog string
}

// runCmd generates and uploads the working set
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate and upload every illustration that is still missing",
	Long: `Computes the working set (defined prompts minus already generated ones),
then for each item resolves the prompt, asks Gemini for an image and
uploads it. A summary of successes and failures is printed at the end.

Exit status: 0 when everything succeeded or there was nothing to do,
2 when some items failed, 3 when all of them failed, 1 on fatal errors.

Examples:
  illustrator run
  illustrator run --only tools/ --only tabs/
  illustrator run --dry-run
  illustrator run --schedule "0 0 3 * * *"`,
	Args: cobra.NoArgs,
	RunE: runIllustrations,
}

// listCmd prints the working set without generating anything
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the identifiers a run would process",
	Args:  cobra.NoArgs,
	RunE:  listWorkingSet,
}

// manifestCmd dumps persisted run state
var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the manifest records as YAML",
	Args:  cobra.NoArgs,
	RunE:  dumpManifest,
}

func init() {
	runCmd.Flags().StringArrayVar(&runFlags.only, "only", nil, "Only process identifiers under this prefix (repeatable)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "Print the working set and exit without calling any service")
	runCmd.Flags().BoolVar(&runFlags.force, "force", false, "Ignore successes recorded in the manifest")
	runCmd.Flags().StringVar(&runFlags.schedule, "schedule", "", "Cron spec with seconds field; rerun the batch on this schedule")
	runCmd.Flags().StringVar(&runFlags.catalog, "catalog", "", "Prompt catalog YAML file (default: embedded catalog)")
	runCmd.Flags().StringVar(&runFlags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after each run")

	listCmd.Flags().StringArrayVar(&listFlags.only, "only", nil, "Only list identifiers under this prefix (repeatable)")
	listCmd.Flags().BoolVar(&listFlags.force, "force", false, "Ignore successes recorded in the manifest")
	listCmd.Flags().StringVar(&listFlags.catalog, "catalog", "", "Prompt catalog YAML file (default: embedded catalog)")
}

func runIllustrations(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("loading configuration")
	cfg, err := config.Load(ctx)
	if err != nil {
		return configFailure(err)
	}
	if runFlags.catalog != "" {
		cfg.Run.CatalogPath = runFlags.catalog
	}
	if runFlags.metricsFile != "" {
		cfg.Run.MetricsFile = runFlags.metricsFile
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return configFailure(err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	opts := service.RunOptions{
		Only:   runFlags.only,
		Force:  runFlags.force,
		DryRun: runFlags.dryRun,
	}
	out := cmd.OutOrStdout()

	if runFlags.schedule != "" {
		logger.Info("starting scheduled runs", zap.String("schedule", runFlags.schedule))
		err := service.RunScheduled(ctx, runFlags.schedule, logger, func(ctx context.Context) {
			report, err := a.service.Run(ctx, opts)
			if report != nil {
				service.PrintReport(out, report)
			}
			a.writeMetrics(logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduled run failed", zap.Error(err))
			}
		})
		if err != nil {
			return &exitError{code: exitFatal, err: err}
		}
		logger.Info("shutting down gracefully")
		return nil
	}

	report, err := a.service.Run(ctx, opts)
	if report == nil {
		return &exitError{code: exitFatal, err: err}
	}
	service.PrintReport(out, report)
	a.writeMetrics(logger)

	if err != nil {
		logger.Warn("run interrupted", zap.Error(err))
	}
	if code := exitCode(report.Outcome()); code != exitOK {
		return &exitError{code: code}
	}
	return nil
}

func listWorkingSet(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadUnchecked(ctx)
	if err != nil {
		return configFailure(err)
	}
	if listFlags.catalog != "" {
		cfg.Run.CatalogPath = listFlags.catalog
	}

	cat, err := loadCatalog(cfg.Run.CatalogPath)
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}
	manifest, err := openManifest(ctx, cfg, logger)
	if err != nil {
		return configFailure(err)
	}
	defer manifest.Close()

	svc := service.NewIllustrationService(cat, nil, nil,
		service.WithManifest(manifest),
		service.WithLogger(logger),
	)
	ids, err := svc.WorkingSet(ctx, service.RunOptions{Only: listFlags.only, Force: listFlags.force})
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}

	out := cmd.OutOrStdout()
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	logger.Info("working set",
		zap.Int("defined", cat.Len()),
		zap.Int("already_generated", cat.ExcludedCount()),
		zap.Int("selected", len(ids)),
	)
	return nil
}

func dumpManifest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadUnchecked(ctx)
	if err != nil {
		return configFailure(err)
	}
	manifest, err := openManifest(ctx, cfg, logger)
	if err != nil {
		return configFailure(err)
	}
	defer manifest.Close()

	return writeManifest(ctx, cmd.OutOrStdout(), manifest)
}

func writeManifest(ctx context.Context, w io.Writer, manifest repository.ManifestRepository) error {
	records, err := manifest.List(ctx)
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(struct {
		Records []domain.ManifestRecord `yaml:"records"`
	}{Records: records}); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return enc.Close()
}
