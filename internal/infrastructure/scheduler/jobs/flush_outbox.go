// Package jobs contains the kiosk's scheduled background jobs.
package jobs

import (
	"context"
	"errors"
	"log/slog"

	kiosksync "github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/sync"
)

// FlushOutboxJobName is the scheduler registration name of the outbox flush.
const FlushOutboxJobName = "flush_outbox"

// FlushOutbox periodically replays the offline write queue. The same job is
// also triggered out of schedule when connectivity returns.
type FlushOutbox struct {
	coordinator *kiosksync.Coordinator
	logger      *slog.Logger
}

// NewFlushOutbox creates the job.
func NewFlushOutbox(coordinator *kiosksync.Coordinator, logger *slog.Logger) *FlushOutbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlushOutbox{
		coordinator: coordinator,
		logger:      logger.With(slog.String("job", FlushOutboxJobName)),
	}
}

// Name returns the job name.
func (j *FlushOutbox) Name() string {
	return FlushOutboxJobName
}

// Run executes one sync pass. An overlapping pass is not an error: the
// interval tick and the connectivity trigger may race, and whichever loses
// simply yields.
func (j *FlushOutbox) Run(ctx context.Context) error {
	report, err := j.coordinator.Sync(ctx)
	if err != nil {
		if errors.Is(err, kiosksync.ErrSyncInProgress) {
			j.logger.Debug("sync pass already running, skipping")
			return nil
		}
		return err
	}

	if report.Applied > 0 || report.Failed > 0 || report.Dropped > 0 {
		j.logger.Info("outbox flushed",
			slog.Int("applied", report.Applied),
			slog.Int("failed", report.Failed),
			slog.Int("dropped", report.Dropped),
			slog.Int("remaining", report.Remaining))
	}

	return nil
}
