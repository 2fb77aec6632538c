package jobs

import (
	"context"
	"fmt"

	"github.com/samutus/warframe-market-collector/internal/pipeline"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// AnalyticsJob rebuilds and publishes the analytics dataset once a
// day, after the 06:00 snapshot run has landed.
type AnalyticsJob struct {
	runner *pipeline.Analytics
	logger *logger.Logger
}

// NewAnalyticsJob creates a new analytics job.
func NewAnalyticsJob(runner *pipeline.Analytics, log *logger.Logger) *AnalyticsJob {
	return &AnalyticsJob{
		runner: runner,
		logger: log,
	}
}

// Name returns the job name.
func (j *AnalyticsJob) Name() string {
	return "analytics_publish"
}

// Schedule returns the cron schedule (07:00 UTC daily).
func (j *AnalyticsJob) Schedule() string {
	return "0 0 7 * * *"
}

// Run executes the analytics publish.
func (j *AnalyticsJob) Run(ctx context.Context) error {
	result, err := j.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("analytics run: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"sets":        result.Sets,
		"divergences": result.Divergences,
	}).Info("Scheduled analytics publish completed")

	return nil
}
