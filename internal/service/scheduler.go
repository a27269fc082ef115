package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunScheduled invokes job on the cron schedule spec (seconds field
// enabled) until ctx is cancelled. A tick that fires while the previous
// job is still running is skipped.
func RunScheduled(ctx context.Context, spec string, logger *zap.Logger, job func(ctx context.Context)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cron")

	c := cron.New(cron.WithSeconds())

	var running sync.Mutex

	_, err := c.AddFunc(spec, func() {
		logger.Info("attempting to start scheduled run")
		if !running.TryLock() {
			logger.Warn("previous run still in progress, skipping tick")
			return
		}
		defer running.Unlock()

		if ctx.Err() != nil {
			return
		}
		logger.Info("running scheduled run")
		job(ctx)
		logger.Info("finished scheduled run")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info("cron scheduler started", zap.String("schedule", spec))

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	logger.Info("cron scheduler stopped")

	return nil
}
