// Package jobs holds the scheduled pipeline runs: the daily eligibility
// screen, the six-hour order book snapshots and the daily analytics
// publish.
package jobs

import (
	"context"
	"fmt"

	"github.com/samutus/warframe-market-collector/internal/pipeline"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// EligibilityJob refreshes the eligible item list once a day, before
// the first snapshot run of the day.
type EligibilityJob struct {
	collector *pipeline.Collector
	logger    *logger.Logger
}

// NewEligibilityJob creates a new eligibility job.
func NewEligibilityJob(col *pipeline.Collector, log *logger.Logger) *EligibilityJob {
	return &EligibilityJob{
		collector: col,
		logger:    log,
	}
}

// Name returns the job name.
func (j *EligibilityJob) Name() string {
	return "eligibility_screen"
}

// Schedule returns the cron schedule (05:30 UTC daily, ahead of the
// 06:00 snapshot run).
func (j *EligibilityJob) Schedule() string {
	return "0 30 5 * * *"
}

// Run executes the eligibility screen.
func (j *EligibilityJob) Run(ctx context.Context) error {
	result, err := j.collector.RunDaily(ctx)
	if err != nil {
		return fmt.Errorf("eligibility screen: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"items":    result.ItemsListed,
		"eligible": result.Eligible,
		"failed":   result.Failed,
	}).Info("Scheduled eligibility screen completed")

	return nil
}
