// Package orchestrator sequences the analysis components over one dataset
// snapshot, aggregates their results into a report, and owns the lifecycle
// of persisted model artifacts.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/lucid-vigil/threatlens/pkg/analysis"
	"github.com/lucid-vigil/threatlens/pkg/analysis/anomaly"
	"github.com/lucid-vigil/threatlens/pkg/analysis/campaign"
	"github.com/lucid-vigil/threatlens/pkg/analysis/cluster"
	"github.com/lucid-vigil/threatlens/pkg/analysis/predict"
	"github.com/lucid-vigil/threatlens/pkg/analysis/temporal"
	"github.com/lucid-vigil/threatlens/pkg/config"
	"github.com/lucid-vigil/threatlens/pkg/feed"
	"github.com/lucid-vigil/threatlens/pkg/features"
	"github.com/lucid-vigil/threatlens/pkg/modelstore"
)

// Orchestrator runs the full analysis battery over an event snapshot. The
// feature table is engineered once and shared read-only across components;
// each component still fits its own preprocessing internally.
type Orchestrator struct {
	clusterer  *cluster.Clusterer
	scorer     *anomaly.Scorer
	predictor  *predict.Predictor
	temporal   *temporal.Analyzer
	correlator *campaign.Correlator

	store         *modelstore.Store
	contamination float64
	timespanDays  int
	minAttacks    int
	logger        zerolog.Logger

	mu     sync.RWMutex
	latest *Report
}

// New wires the analysis components from configuration and opens the model
// store directory.
func New(cfg *config.Config, logger zerolog.Logger) (*Orchestrator, error) {
	store, err := modelstore.New(cfg.ModelDir, logger)
	if err != nil {
		return nil, err
	}

	a := cfg.Analysis
	return &Orchestrator{
		clusterer: cluster.NewClusterer(logger,
			cluster.WithEps(a.Eps),
			cluster.WithMinSamples(a.MinSamples),
			cluster.WithStore(store)),
		scorer: anomaly.NewScorer(logger,
			anomaly.WithTrees(a.Trees),
			anomaly.WithSampleSize(a.SampleSize),
			anomaly.WithSeed(a.Seed),
			anomaly.WithStore(store)),
		predictor: predict.NewPredictor(logger,
			predict.WithTrees(a.PredictionTrees),
			predict.WithSeed(a.Seed),
			predict.WithStore(store)),
		temporal:   temporal.NewAnalyzer(logger),
		correlator: campaign.NewCorrelator(logger),

		store:         store,
		contamination: a.Contamination,
		timespanDays:  a.CampaignTimespanDays,
		minAttacks:    a.CampaignMinAttacks,
		logger:        logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// ResourceSnapshot records the process footprint after a run.
type ResourceSnapshot struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// Report aggregates one analysis run.
type Report struct {
	analysis.Status
	RunID          string           `json:"run_id"`
	DataSize       int              `json:"data_size"`
	TimeFilterDays int              `json:"time_filter_days,omitempty"`
	GeneratedAt    time.Time        `json:"generated_at"`
	Elapsed        time.Duration    `json:"elapsed_ns"`
	Clustering     cluster.Result   `json:"clustering"`
	Anomaly        anomaly.Result   `json:"anomaly"`
	Prediction     predict.FitResult `json:"prediction"`
	Temporal       temporal.Result  `json:"temporal"`
	Campaigns      campaign.Result  `json:"campaigns"`
	Resources      ResourceSnapshot `json:"resources"`
}

// Run analyzes one snapshot. timeFilterDays restricts the snapshot to the
// trailing window when positive. When feature engineering yields an empty
// table the run short-circuits with a single failure report instead of
// five redundant component failures.
func (o *Orchestrator) Run(ctx context.Context, events []feed.Event, timeFilterDays int) *Report {
	started := time.Now()

	report := &Report{
		RunID:          uuid.NewString(),
		TimeFilterDays: timeFilterDays,
		GeneratedAt:    started,
	}

	events = feed.FilterWindow(events, timeFilterDays, started)
	table := features.Engineer(events)
	report.DataSize = len(table)

	if len(table) == 0 {
		o.logger.Warn().Str("run_id", report.RunID).Msg("No attack data to analyze")
		report.Status = analysis.Fail("no attack data available")
		o.setLatest(report)
		return report
	}

	o.logger.Info().
		Str("run_id", report.RunID).
		Int("events", len(table)).
		Msg("Analysis run starting")

	report.Clustering = o.clusterer.Fit(ctx, table)
	report.Anomaly = o.scorer.Fit(ctx, table, o.contamination)
	report.Prediction = o.predictor.Fit(ctx, table)
	report.Temporal = o.temporal.Analyze(ctx, table)
	report.Campaigns = o.correlator.Correlate(ctx, table, o.timespanDays, o.minAttacks)

	report.Status = analysis.OK()
	report.Elapsed = time.Since(started)
	report.Resources = snapshotResources()

	o.logger.Info().
		Str("run_id", report.RunID).
		Dur("elapsed", report.Elapsed).
		Uint64("rss_bytes", report.Resources.RSSBytes).
		Msg("Analysis run complete")

	o.setLatest(report)
	return report
}

// Predict ranks probable targets using the most recent fitted prediction
// model from the latest run.
func (o *Orchestrator) Predict(ctx context.Context, sourceCountry, attackType string, timeframeDays int) predict.PredictResult {
	o.mu.RLock()
	var model *predict.Model
	if o.latest != nil {
		model = o.latest.Prediction.Model
	}
	o.mu.RUnlock()

	return o.predictor.Predict(ctx, model, sourceCountry, attackType, timeframeDays)
}

// LatestReport returns the most recent run's report, or nil when no run
// has completed.
func (o *Orchestrator) LatestReport() *Report {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest
}

func (o *Orchestrator) setLatest(report *Report) {
	o.mu.Lock()
	o.latest = report
	o.mu.Unlock()
}

// Models enumerates persisted model names per kind.
func (o *Orchestrator) Models() (map[modelstore.Kind][]string, error) {
	return o.store.ListAll()
}

// LoadModel retrieves a persisted artifact by kind and name. The switch is
// exhaustive over the three model kinds.
func (o *Orchestrator) LoadModel(kind modelstore.Kind, name string) (interface{}, error) {
	switch kind {
	case modelstore.KindClustering:
		var model cluster.Model
		if err := o.store.Load(name, &model); err != nil {
			return nil, err
		}
		return &model, nil
	case modelstore.KindAnomaly:
		var model anomaly.Model
		if err := o.store.Load(name, &model); err != nil {
			return nil, err
		}
		return &model, nil
	case modelstore.KindPrediction:
		var model predict.Model
		if err := o.store.Load(name, &model); err != nil {
			return nil, err
		}
		return &model, nil
	default:
		return nil, fmt.Errorf("unknown model kind: %s", kind)
	}
}

// EventSource supplies the event snapshot for a periodic run.
type EventSource func(ctx context.Context) ([]feed.Event, error)

// RunPeriodic re-analyzes at the given interval until the context is
// cancelled. The first run happens immediately.
func (o *Orchestrator) RunPeriodic(ctx context.Context, interval time.Duration, timeFilterDays int, source EventSource) {
	run := func() {
		events, err := source(ctx)
		if err != nil {
			o.logger.Error().Err(err).Msg("Failed to collect events for periodic run")
			return
		}
		o.Run(ctx, events, timeFilterDays)
	}

	o.logger.Info().Dur("interval", interval).Msg("Periodic analysis starting")
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run()
		case <-ctx.Done():
			o.logger.Info().Msg("Periodic analysis received shutdown signal")
			return
		}
	}
}

// snapshotResources records the process RSS and CPU share. Failures leave
// the snapshot zeroed; resource accounting never fails a run.
func snapshotResources() ResourceSnapshot {
	var snap ResourceSnapshot
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return snap
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		snap.RSSBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	return snap
}
