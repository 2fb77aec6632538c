package jobs

import (
	"context"
	"fmt"

	"github.com/samutus/warframe-market-collector/internal/pipeline"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// SnapshotJob captures order book snapshots for the eligible items
// every six hours.
type SnapshotJob struct {
	collector *pipeline.Collector
	logger    *logger.Logger
}

// NewSnapshotJob creates a new snapshot job.
func NewSnapshotJob(col *pipeline.Collector, log *logger.Logger) *SnapshotJob {
	return &SnapshotJob{
		collector: col,
		logger:    log,
	}
}

// Name returns the job name.
func (j *SnapshotJob) Name() string {
	return "orderbook_snapshots"
}

// Schedule returns the cron schedule (00:00, 06:00, 12:00, 18:00 UTC).
func (j *SnapshotJob) Schedule() string {
	return "0 0 */6 * * *"
}

// Run executes the snapshot pass.
func (j *SnapshotJob) Run(ctx context.Context) error {
	result, err := j.collector.RunSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("snapshot run: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"captured": result.Captured,
		"failed":   result.Failed,
	}).Info("Scheduled snapshot run completed")

	return nil
}
