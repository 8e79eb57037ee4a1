// Package anomaly flags atypical attack events with an isolation-based
// outlier model over engineered features.
package anomaly

import (
	"context"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"github.com/lucid-vigil/threatlens/pkg/analysis"
	tlerrors "github.com/lucid-vigil/threatlens/pkg/errors"
	"github.com/lucid-vigil/threatlens/pkg/features"
	"github.com/lucid-vigil/threatlens/pkg/modelstore"
)

// Scorer fits an isolation forest over engineered features. The seed makes
// repeated fits on identical input reproduce identical flagged sets.
type Scorer struct {
	trees      int
	sampleSize int
	seed       int64
	store      *modelstore.Store
	logger     zerolog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(s *Scorer) { s.trees = n }
}

// WithSampleSize sets the per-tree subsample size.
func WithSampleSize(n int) Option {
	return func(s *Scorer) { s.sampleSize = n }
}

// WithSeed sets the random seed.
func WithSeed(seed int64) Option {
	return func(s *Scorer) { s.seed = seed }
}

// WithStore enables persistence of fitted models.
func WithStore(store *modelstore.Store) Option {
	return func(s *Scorer) { s.store = store }
}

// NewScorer creates a Scorer with 100 trees, subsample 256, seed 42.
func NewScorer(logger zerolog.Logger, opts ...Option) *Scorer {
	s := &Scorer{
		trees:      100,
		sampleSize: 256,
		seed:       42,
		logger:     logger.With().Str("component", "anomaly_scorer").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model is the persisted anomaly artifact.
type Model struct {
	Forest        *Forest
	Preprocessor  *features.Preprocessor
	Contamination float64
	Threshold     float64
}

// ScoredRow pairs a table row with its anomaly score.
type ScoredRow struct {
	Index int          `json:"index"`
	Score float64      `json:"anomaly_score"`
	Row   features.Row `json:"-"`
}

// Result reports an anomaly fit. Scores and Flags align with the input
// table rows; Anomalies lists the flagged rows sorted ascending by score,
// most anomalous first.
type Result struct {
	analysis.Status
	AnomalyCount int         `json:"anomaly_count"`
	AnomalyRatio float64     `json:"anomaly_ratio"`
	Threshold    float64     `json:"threshold"`
	Scores       []float64   `json:"scores"`
	Flags        []bool      `json:"flags"`
	Anomalies    []ScoredRow `json:"anomalies"`
	ModelName    string      `json:"model_name,omitempty"`
}

// Fit scores the feature table. The most negative contamination fraction of
// rows is flagged anomalous. contamination must lie in (0,1).
func (s *Scorer) Fit(ctx context.Context, table features.Table, contamination float64) Result {
	if len(table) == 0 {
		s.logger.Warn().Msg("Empty table provided for anomaly detection")
		return Result{Status: analysis.FailErr(tlerrors.NewEmptyInput("anomaly_scorer"))}
	}
	if contamination <= 0 || contamination >= 1 {
		return Result{Status: analysis.Failf("contamination must be in (0,1), got %v", contamination)}
	}

	pre := features.FitPreprocessor(table)
	points := pre.Transform(table)

	rng := rand.New(rand.NewSource(s.seed))
	forest, err := buildForest(ctx, points, s.trees, s.sampleSize, rng)
	if err != nil {
		s.logger.Error().Err(err).Msg("Anomaly fit aborted")
		return Result{Status: analysis.FailErr(err)}
	}

	scores := make([]float64, len(points))
	for i, p := range points {
		scores[i] = forest.DecisionScore(p)
	}

	// Flag exactly the round(n * contamination) most negative scores.
	// Ordering ties by index keeps the flagged set deterministic.
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})

	k := int(float64(len(scores))*contamination + 0.5)
	if k > len(scores) {
		k = len(scores)
	}

	flags := make([]bool, len(scores))
	anomalies := make([]ScoredRow, 0, k)
	threshold := 0.0
	for rank := 0; rank < k; rank++ {
		idx := order[rank]
		flags[idx] = true
		threshold = scores[idx]
		anomalies = append(anomalies, ScoredRow{Index: idx, Score: scores[idx], Row: table[idx]})
	}

	result := Result{
		Status:       analysis.OK(),
		AnomalyCount: k,
		AnomalyRatio: float64(k) / float64(len(scores)),
		Threshold:    threshold,
		Scores:       scores,
		Flags:        flags,
		Anomalies:    anomalies,
	}

	if s.store != nil {
		name, err := s.store.Save(modelstore.KindAnomaly, Model{
			Forest:        forest,
			Preprocessor:  pre,
			Contamination: contamination,
			Threshold:     threshold,
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to persist anomaly model")
		} else {
			result.ModelName = name
		}
	}

	s.logger.Info().
		Int("anomalies", result.AnomalyCount).
		Float64("ratio", result.AnomalyRatio).
		Msg("Anomaly fit complete")

	return result
}
