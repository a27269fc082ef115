package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/basel-ax/illustrator/internal/config"
	"github.com/basel-ax/illustrator/internal/domain"
)

var (
	// Global flags
	verbose bool
	logJSON bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "illustrator",
	Short: "Generate the app's illustration set with Gemini and publish it to object storage",
	Long: `illustrator walks the prompt catalog, skips everything that was already
generated, asks Gemini for one image per remaining prompt and uploads the
result as {id}.png to the configured bucket.

Items are processed one at a time with a fixed delay between requests. A
failed item is reported and never stops the batch.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(verbose, logJSON)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(manifestCmd)
}

func main() {
	os.Exit(execute())
}

func execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exitErr.err)
		}
		return exitErr.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}

// newLogger builds the process logger. Logs go to stderr so stdout carries
// only the run summary.
func newLogger(verbose, json bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if json {
		cfg.Encoding = "json"
		cfg.EncoderConfig = zap.NewProductionEncoderConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// Exit codes for a completed run.
const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
	exitFailed  = 3
)

func exitCode(outcome domain.Outcome) int {
	switch outcome {
	case domain.OutcomePartial:
		return exitPartial
	case domain.OutcomeFailed:
		return exitFailed
	default:
		return exitOK
	}
}

// configFailure prints the usage text next to a configuration error.
func configFailure(err error) error {
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		return &exitError{code: exitFatal, err: fmt.Errorf("%w\n\n%s", err, config.Usage)}
	}
	return &exitError{code: exitFatal, err: err}
}
