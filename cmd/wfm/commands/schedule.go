package commands

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samutus/warframe-market-collector/internal/market"
	"github.com/samutus/warframe-market-collector/internal/pipeline"
	"github.com/samutus/warframe-market-collector/internal/publish"
	"github.com/samutus/warframe-market-collector/internal/scheduler"
	"github.com/samutus/warframe-market-collector/internal/scheduler/jobs"
	"github.com/samutus/warframe-market-collector/internal/snapshot"
	"github.com/samutus/warframe-market-collector/pkg/database"
	"github.com/samutus/warframe-market-collector/pkg/httputil"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Cron scheduler for the recurring runs",
	Long: `Runs the collector on its cron cadence.

Registered jobs:
- eligibility_screen: daily 05:30 UTC (weekly volume screen)
- orderbook_snapshots: every 6 hours (top-of-book capture)
- analytics_publish: daily 07:00 UTC (aggregate, score, publish)

Subcommands:
  start   - start the scheduler daemon
  list    - registered jobs
  run     - run one job immediately
  status  - job execution stats

Example:
  go run ./cmd/wfm schedule start
  go run ./cmd/wfm schedule run orderbook_snapshots`,
}

var (
	scheduleStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Starts the scheduler daemon and keeps it in the foreground
until interrupted. Job stats are printed on shutdown.`,
		RunE: runScheduleStart,
	}

	scheduleListCmd = &cobra.Command{
		Use:   "list",
		Short: "Registered jobs",
		RunE:  runScheduleList,
	}

	scheduleRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleRun,
	}

	scheduleStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Job execution stats",
		RunE:  runScheduleStatus,
	}
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleStartCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)
	scheduleCmd.AddCommand(scheduleStatusCmd)
}

func runScheduleStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Warframe Market Scheduler ===")
	fmt.Println()

	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	sched.Start()

	fmt.Println("Registered jobs:")
	PrintList(sched.GetAllJobs())
	fmt.Println()
	PrintInfo("Scheduler running - press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	printJobStats(sched)
	fmt.Println("Scheduler stopped")

	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	fmt.Println("Registered jobs:")
	PrintList(sched.GetAllJobs())

	return nil
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	if err := sched.RunJob(jobName); err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	fmt.Println("Job started (running in background)")
	return nil
}

func runScheduleStatus(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	printJobStats(sched)
	return nil
}

func printJobStats(s *scheduler.Scheduler) {
	stats := s.GetJobStats()
	if len(stats) == 0 {
		return
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Job statistics:")
	widths := []int{20, 16, 5, 4, 6, 5, 19}
	PrintTableHeader([]string{"job", "schedule", "runs", "ok", "failed", "rate", "last run"}, widths)
	for _, name := range names {
		stat := stats[name]
		lastRun := "-"
		if stat.LastRun != nil {
			lastRun = stat.LastRun.Format("2006-01-02 15:04:05")
		}
		PrintTableRow([]string{
			stat.JobName,
			stat.Schedule,
			fmt.Sprintf("%d", stat.TotalRuns),
			fmt.Sprintf("%d", stat.SuccessCount),
			fmt.Sprintf("%d", stat.FailureCount),
			fmt.Sprintf("%.0f%%", stat.SuccessRate*100),
			lastRun,
		}, widths)
	}
}

// initScheduler wires the three recurring jobs over a shared pipeline.
// The returned cleanup closes the mirror pool when one was opened.
func initScheduler() (*scheduler.Scheduler, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg)

	httpClient := httputil.New(cfg, log)
	client := market.NewClient(cfg, httpClient, log)
	store := snapshot.NewStore(cfg.Storage.DataDir, log)
	col := pipeline.NewCollector(cfg, client, store, log)

	publisher := publish.NewPublisher(cfg.Storage.AnalyticsDir, log)

	cleanup := func() {}
	var mirror *publish.Mirror
	if cfg.Database.Enabled() {
		db, err := database.New(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		cleanup = db.Close
		mirror = publish.NewMirror(db.Pool, log)
	}
	runner := pipeline.NewAnalytics(cfg, store, publisher, mirror, log)

	sched := scheduler.New(log)
	for _, job := range []scheduler.Job{
		jobs.NewEligibilityJob(col, log),
		jobs.NewSnapshotJob(col, log),
		jobs.NewAnalyticsJob(runner, log),
	} {
		if err := sched.AddJob(job); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return sched, cleanup, nil
}
