// Package predict trains a supervised classifier mapping engineered attack
// features to the most probable target country, with held-out evaluation
// and feature-importance ranking.
package predict

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucid-vigil/threatlens/pkg/analysis"
	tlerrors "github.com/lucid-vigil/threatlens/pkg/errors"
	"github.com/lucid-vigil/threatlens/pkg/features"
	"github.com/lucid-vigil/threatlens/pkg/feed"
	"github.com/lucid-vigil/threatlens/pkg/modelstore"
)

const testFraction = 0.2

// Predictor trains a bagged decision-tree classifier predicting the target
// country from all other engineered features.
type Predictor struct {
	trees  int
	seed   int64
	store  *modelstore.Store
	logger zerolog.Logger
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithTrees sets the ensemble size.
func WithTrees(n int) Option {
	return func(p *Predictor) { p.trees = n }
}

// WithSeed sets the random seed for the train/test split and bagging.
func WithSeed(seed int64) Option {
	return func(p *Predictor) { p.seed = seed }
}

// WithStore enables persistence of fitted models.
func WithStore(store *modelstore.Store) Option {
	return func(p *Predictor) { p.store = store }
}

// NewPredictor creates a Predictor with 100 trees and seed 42.
func NewPredictor(logger zerolog.Logger, opts ...Option) *Predictor {
	p := &Predictor{
		trees:  100,
		seed:   42,
		logger: logger.With().Str("component", "target_predictor").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Model is the persisted prediction artifact and the explicit handle passed
// into Predict. There is no implicit "currently loaded model" state.
type Model struct {
	Forest       *Forest
	Preprocessor *features.Preprocessor
	Classes      []string
}

// Importance is one encoded feature's share of the model's total impurity
// decrease. One-hot features carry "column=value" names.
type Importance struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// ClassMetrics holds held-out precision/recall/F1 for one target class.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// FitResult reports a prediction fit evaluated on a held-out 20% split.
type FitResult struct {
	analysis.Status
	Accuracy        float64                 `json:"accuracy"`
	F1Score         float64                 `json:"f1_score"` // weighted by class support
	Classes         []string                `json:"classes"`
	ConfusionMatrix [][]int                 `json:"confusion_matrix"` // rows actual, columns predicted
	Report          map[string]ClassMetrics `json:"report"`
	Importances     []Importance            `json:"feature_importances"` // top 10
	ModelName       string                  `json:"model_name,omitempty"`
	Model           *Model                  `json:"-"`
}

// TargetProbability is one ranked prediction.
type TargetProbability struct {
	TargetCountry string  `json:"target_country"`
	Probability   float64 `json:"probability"`
}

// PredictResult reports ranked target probabilities for a hypothetical
// attack profile.
type PredictResult struct {
	analysis.Status
	Predictions   []TargetProbability `json:"predictions"` // top 5
	SourceCountry string              `json:"source_country,omitempty"`
	AttackType    string              `json:"attack_type,omitempty"`
	TimeframeDays int                 `json:"timeframe_days"`
	GeneratedAt   time.Time           `json:"generated_at"`
}

// Fit trains and evaluates the classifier. The target label is the
// engineered target_country column; a table where every label is the
// unknown sentinel has no usable label column and fails descriptively.
func (p *Predictor) Fit(ctx context.Context, table features.Table) FitResult {
	if len(table) == 0 {
		p.logger.Warn().Msg("Empty table provided for target prediction")
		return FitResult{Status: analysis.FailErr(tlerrors.NewEmptyInput("target_predictor"))}
	}

	labeled := false
	for _, row := range table {
		if row.TargetCountry != features.Unknown {
			labeled = true
			break
		}
	}
	if !labeled {
		return FitResult{Status: analysis.FailErr(
			tlerrors.NewMissingColumn("target_predictor", features.ColTargetCountry))}
	}

	// Class index over the full table so held-out-only classes still map.
	classIndex := make(map[string]int)
	var classes []string
	labels := make([]int, len(table))
	for i, row := range table {
		idx, ok := classIndex[row.TargetCountry]
		if !ok {
			idx = len(classes)
			classIndex[row.TargetCountry] = idx
			classes = append(classes, row.TargetCountry)
		}
		labels[i] = idx
	}

	pre := features.FitPreprocessor(table, features.WithoutTargetColumn())
	points := pre.Transform(table)

	// Seeded 80/20 train/test split.
	rng := rand.New(rand.NewSource(p.seed))
	perm := rng.Perm(len(table))
	testCount := int(math.Ceil(float64(len(table)) * testFraction))
	if testCount >= len(table) {
		return FitResult{Status: analysis.Failf(
			"not enough rows for a train/test split: %d", len(table))}
	}

	testIdx := perm[:testCount]
	trainIdx := perm[testCount:]

	trainX := make([][]float64, len(trainIdx))
	trainY := make([]int, len(trainIdx))
	for i, idx := range trainIdx {
		trainX[i] = points[idx]
		trainY[i] = labels[idx]
	}

	forest, err := buildForest(ctx, trainX, trainY, len(classes), p.trees, rng)
	if err != nil {
		p.logger.Error().Err(err).Msg("Prediction fit aborted")
		return FitResult{Status: analysis.FailErr(err)}
	}

	result := evaluate(forest, points, labels, testIdx, classes)
	result.Model = &Model{Forest: forest, Preprocessor: pre, Classes: classes}
	result.Importances = topImportances(forest.Importances, pre.FeatureNames(), 10)

	if p.store != nil {
		name, err := p.store.Save(modelstore.KindPrediction, *result.Model)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to persist prediction model")
		} else {
			result.ModelName = name
		}
	}

	p.logger.Info().
		Float64("accuracy", result.Accuracy).
		Float64("f1", result.F1Score).
		Int("classes", len(classes)).
		Msg("Prediction fit complete")

	return result
}

func evaluate(forest *Forest, points [][]float64, labels []int, testIdx []int, classes []string) FitResult {
	confusion := make([][]int, len(classes))
	for i := range confusion {
		confusion[i] = make([]int, len(classes))
	}

	correct := 0
	for _, idx := range testIdx {
		pred := forest.Predict(points[idx])
		confusion[labels[idx]][pred]++
		if pred == labels[idx] {
			correct++
		}
	}

	report := make(map[string]ClassMetrics, len(classes))
	var weightedF1 float64
	for c, class := range classes {
		var tp, fp, fn int
		for other := range classes {
			if other == c {
				tp = confusion[c][c]
				continue
			}
			fn += confusion[c][other]
			fp += confusion[other][c]
		}

		m := ClassMetrics{Support: tp + fn}
		if tp+fp > 0 {
			m.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			m.Recall = float64(tp) / float64(tp+fn)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report[class] = m
		weightedF1 += m.F1 * float64(m.Support)
	}
	weightedF1 /= float64(len(testIdx))

	return FitResult{
		Status:          analysis.OK(),
		Accuracy:        float64(correct) / float64(len(testIdx)),
		F1Score:         weightedF1,
		Classes:         classes,
		ConfusionMatrix: confusion,
		Report:          report,
	}
}

func topImportances(importances []float64, names []string, limit int) []Importance {
	ranked := make([]Importance, 0, len(importances))
	for i, w := range importances {
		if w > 0 {
			ranked = append(ranked, Importance{Feature: names[i], Weight: w})
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Weight > ranked[b].Weight
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Predict ranks the top 5 most probable target countries for a hypothetical
// attack from the given source and type over the next timeframeDays.
// Missing inputs take the unknown sentinel, consistent with training-time
// imputation. A nil model is the untrained-model condition.
func (p *Predictor) Predict(ctx context.Context, model *Model, sourceCountry, attackType string, timeframeDays int) PredictResult {
	if model == nil || model.Forest == nil {
		return PredictResult{Status: analysis.FailErr(tlerrors.NewUntrainedModel("target_predictor"))}
	}
	if err := ctx.Err(); err != nil {
		return PredictResult{Status: analysis.FailErr(err)}
	}

	sample := features.Engineer([]feed.Event{{
		SourceCountry: sourceCountry,
		AttackType:    attackType,
		Timestamp:     time.Now(),
	}})

	proba := model.Forest.Proba(model.Preprocessor.TransformRow(sample[0]))

	ranked := make([]TargetProbability, 0, len(proba))
	for c, pr := range proba {
		ranked = append(ranked, TargetProbability{TargetCountry: model.Classes[c], Probability: pr})
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Probability > ranked[b].Probability
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}

	return PredictResult{
		Status:        analysis.OK(),
		Predictions:   ranked,
		SourceCountry: sourceCountry,
		AttackType:    attackType,
		TimeframeDays: timeframeDays,
		GeneratedAt:   time.Now(),
	}
}
