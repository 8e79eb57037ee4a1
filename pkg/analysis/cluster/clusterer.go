// Package cluster discovers attack-behavior groups by density-based
// clustering over engineered features.
package cluster

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lucid-vigil/threatlens/pkg/analysis"
	tlerrors "github.com/lucid-vigil/threatlens/pkg/errors"
	"github.com/lucid-vigil/threatlens/pkg/features"
	"github.com/lucid-vigil/threatlens/pkg/modelstore"
)

// Clusterer fits a density-based clustering model over engineered features.
// Each Fit call fits its own preprocessing; no fitted state is shared
// across calls or components.
type Clusterer struct {
	eps        float64
	minSamples int
	store      *modelstore.Store
	logger     zerolog.Logger
}

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithEps sets the neighborhood radius.
func WithEps(eps float64) Option {
	return func(c *Clusterer) { c.eps = eps }
}

// WithMinSamples sets the minimum neighborhood population for a core point.
func WithMinSamples(n int) Option {
	return func(c *Clusterer) { c.minSamples = n }
}

// WithStore enables persistence of fitted models.
func WithStore(store *modelstore.Store) Option {
	return func(c *Clusterer) { c.store = store }
}

// NewClusterer creates a Clusterer with DBSCAN defaults (eps 0.5,
// minSamples 5).
func NewClusterer(logger zerolog.Logger, opts ...Option) *Clusterer {
	c := &Clusterer{
		eps:        0.5,
		minSamples: 5,
		logger:     logger.With().Str("component", "pattern_clusterer").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model is the persisted clustering artifact: the fitted preprocessing
// pipeline plus the clustering parameters and training labels.
type Model struct {
	Eps          float64
	MinSamples   int
	Preprocessor *features.Preprocessor
	Labels       []int
}

// Result reports a clustering fit. Labels align with the input table rows;
// label -1 denotes noise.
type Result struct {
	analysis.Status
	ClusterCount  int         `json:"cluster_count"`
	NoiseRatio    float64     `json:"noise_ratio"`
	ClusterCounts map[int]int `json:"cluster_counts"`
	Labels        []int       `json:"labels"`
	ModelName     string      `json:"model_name,omitempty"`
}

// Fit clusters the feature table. An empty table is a data condition and
// yields a failure result, never an error.
func (c *Clusterer) Fit(ctx context.Context, table features.Table) Result {
	if len(table) == 0 {
		c.logger.Warn().Msg("Empty table provided for clustering")
		return Result{Status: analysis.FailErr(tlerrors.NewEmptyInput("pattern_clusterer"))}
	}

	pre := features.FitPreprocessor(table)
	points := pre.Transform(table)

	labels, err := dbscan(ctx, points, c.eps, c.minSamples)
	if err != nil {
		c.logger.Error().Err(err).Msg("Clustering aborted")
		return Result{Status: analysis.FailErr(err)}
	}

	counts := make(map[int]int)
	noise := 0
	for _, label := range labels {
		counts[label]++
		if label == Noise {
			noise++
		}
	}

	clusterCount := len(counts)
	if noise > 0 {
		clusterCount--
	}

	result := Result{
		Status:        analysis.OK(),
		ClusterCount:  clusterCount,
		NoiseRatio:    float64(noise) / float64(len(labels)),
		ClusterCounts: counts,
		Labels:        labels,
	}

	if c.store != nil {
		name, err := c.store.Save(modelstore.KindClustering, Model{
			Eps:          c.eps,
			MinSamples:   c.minSamples,
			Preprocessor: pre,
			Labels:       labels,
		})
		if err != nil {
			// Persistence failure does not invalidate the analysis.
			c.logger.Error().Err(err).Msg("Failed to persist clustering model")
		} else {
			result.ModelName = name
		}
	}

	c.logger.Info().
		Int("clusters", result.ClusterCount).
		Float64("noise_ratio", result.NoiseRatio).
		Msg("Clustering fit complete")

	return result
}
