package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/samutus/warframe-market-collector/internal/analytics"
	"github.com/samutus/warframe-market-collector/internal/catalog"
	"github.com/samutus/warframe-market-collector/internal/metrics"
	"github.com/samutus/warframe-market-collector/internal/publish"
	"github.com/samutus/warframe-market-collector/internal/snapshot"
	"github.com/samutus/warframe-market-collector/pkg/config"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// Analytics turns the stored observations into the published dataset:
// load, aggregate, score, reconcile, publish.
type Analytics struct {
	cfg       *config.Config
	store     *snapshot.Store
	publisher *publish.Publisher
	mirror    *publish.Mirror // nil without a database
	log       *logger.Logger  // untagged root, for wiring sub-components
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// NewAnalytics creates a new Analytics instance. mirror may be nil when
// no database is configured.
func NewAnalytics(cfg *config.Config, store *snapshot.Store, publisher *publish.Publisher, mirror *publish.Mirror, log *logger.Logger) *Analytics {
	return &Analytics{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		mirror:    mirror,
		log:       log,
		logger:    log.WithField("module", "pipeline"),
		metrics:   metrics.Get(),
	}
}

// RunResult tallies one analytics run.
type RunResult struct {
	Publish     publish.Result
	Sets        int
	Divergences int
	Mirrored    bool
}

// BuildDataset loads every stored partition, scores the craftable
// universe and assembles the dataset for publication. It fails when no
// observations or no usable components exist: publishing an empty
// dataset would wipe the consumers' last good tables.
func (a *Analytics) BuildDataset() (publish.Dataset, error) {
	observations, obsLoad, err := a.store.LoadAll()
	if err != nil {
		return publish.Dataset{}, fmt.Errorf("load observations: %w", err)
	}
	if len(observations) == 0 {
		return publish.Dataset{}, fmt.Errorf("no order book observations under %s", a.cfg.Storage.DataDir)
	}

	componentRows, compLoad, err := a.store.LoadComponents()
	if err != nil {
		return publish.Dataset{}, fmt.Errorf("load components: %w", err)
	}

	cat, err := catalog.New(componentRows)
	if err != nil {
		return publish.Dataset{}, fmt.Errorf("build catalog: %w", err)
	}

	selection := cat.Select(catalog.DefaultFilter(a.cfg.Analytics.PrimeOnly))

	a.logger.WithFields(map[string]interface{}{
		"observations": len(observations),
		"components":   cat.NumComponents(),
		"selected":     len(selection.Sets),
		"excluded":     len(selection.Excluded),
		"malformed":    obsLoad.MalformedSkipped + compLoad.MalformedSkipped,
	}).Info("Loaded stored data")

	aggregates := analytics.Aggregate(observations)
	scorer := analytics.NewScorer(cat, a.cfg.Analytics, a.log)

	records := scorer.Score(aggregates, selection.Sets)
	scale := analytics.ComputeScale(scorer.Composites(records))
	scorer.ApplyScale(records, scale)

	index := scorer.BuildSetIndex(records)
	parts := scorer.PartsLatest(aggregates, index)
	divergences := analytics.CheckReconciliation(index, parts, a.cfg.Analytics.ReconcileTolerancePct)

	for _, d := range divergences {
		a.logger.WithFields(map[string]interface{}{
			"set_url":     d.SetURL,
			"model_cost":  d.ModelCost,
			"latest_cost": d.LatestCost,
			"delta_pct":   d.DeltaPct,
		}).Warn("Assembly cost reconciliation divergence")
	}

	a.metrics.SetSetsIndexed(len(index))
	a.metrics.SetReconcileDivergences(len(divergences))

	return publish.Dataset{
		Index:       index,
		Daily:       records,
		Parts:       parts,
		Divergences: divergences,
	}, nil
}

// Run builds the dataset and publishes it: CSV tables first, then the
// optional database mirror. A mirror failure after a successful CSV
// publish is still an error, but the files on disk are already good.
func (a *Analytics) Run(ctx context.Context) (RunResult, error) {
	start := time.Now()
	result, err := a.run(ctx)
	a.metrics.RecordRun("analytics", runStatus(err), time.Since(start))
	return result, err
}

func (a *Analytics) run(ctx context.Context) (RunResult, error) {
	dataset, err := a.BuildDataset()
	if err != nil {
		return RunResult{}, err
	}

	pubResult, err := a.publisher.WriteCSV(dataset)
	if err != nil {
		return RunResult{}, fmt.Errorf("publish csv tables: %w", err)
	}

	result := RunResult{
		Publish:     pubResult,
		Sets:        len(dataset.Index),
		Divergences: len(dataset.Divergences),
	}

	if a.mirror != nil {
		if err := a.mirror.EnsureSchema(ctx); err != nil {
			return result, fmt.Errorf("ensure mirror schema: %w", err)
		}
		if err := a.mirror.Replace(ctx, dataset); err != nil {
			return result, fmt.Errorf("replace mirror tables: %w", err)
		}
		result.Mirrored = true
	}

	a.logger.WithFields(map[string]interface{}{
		"sets":        result.Sets,
		"divergences": result.Divergences,
		"timeseries":  pubResult.TimeseriesFiles,
		"mirrored":    result.Mirrored,
	}).Info("Analytics run completed")

	return result, nil
}
