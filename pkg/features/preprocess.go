package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Column names of the engineered table, used for feature-importance
// reporting and training-column selection.
const (
	ColAttackType    = "attack_type"
	ColSourceCountry = "source_country"
	ColTargetCountry = "target_country"
	ColDataSource    = "data_source"
	ColSeverity      = "severity"

	ColSourceLatitude   = "source_latitude"
	ColSourceLongitude  = "source_longitude"
	ColTargetLatitude   = "target_latitude"
	ColTargetLongitude  = "target_longitude"
	ColHourOfDay        = "hour_of_day"
	ColDayOfWeek        = "day_of_week"
	ColMonth            = "month"
	ColYear             = "year"
	ColWeekend          = "weekend"
	ColSourceCountryFrq = "source_country_frequency"
	ColAttackTypeFrq    = "attack_type_frequency"
)

var numericColumns = []string{
	ColSourceLatitude, ColSourceLongitude, ColTargetLatitude, ColTargetLongitude,
	ColHourOfDay, ColDayOfWeek, ColMonth, ColYear, ColWeekend,
	ColSourceCountryFrq, ColAttackTypeFrq,
}

var categoricalColumns = []string{
	ColAttackType, ColSourceCountry, ColTargetCountry, ColDataSource, ColSeverity,
}

func (r Row) numericValues() []float64 {
	return []float64{
		r.SourceLatitude, r.SourceLongitude, r.TargetLatitude, r.TargetLongitude,
		float64(r.HourOfDay), float64(r.DayOfWeek), float64(r.Month), float64(r.Year),
		float64(r.Weekend), r.SourceCountryFrequency, r.AttackTypeFrequency,
	}
}

func (r Row) categoricalValue(column string) string {
	switch column {
	case ColAttackType:
		return r.AttackType
	case ColSourceCountry:
		return r.SourceCountry
	case ColTargetCountry:
		return r.TargetCountry
	case ColDataSource:
		return r.DataSource
	case ColSeverity:
		return r.Severity
	default:
		return Unknown
	}
}

// Preprocessor turns feature rows into flat numeric vectors: z-score
// standardization for numeric columns and one-hot encoding for categorical
// columns. Categories unseen at fit time map to an all-zero encoding
// instead of erroring. Each analysis component fits its own Preprocessor on
// its input table; fitted state is never shared across components.
//
// Fields are exported for gob serialization into the model store.
type Preprocessor struct {
	CatColumns []string
	Categories map[string][]string // column -> fit-time category values, sorted
	NumMeans   []float64
	NumStds    []float64
	Names      []string // numeric names followed by "column=value" one-hot names
}

// PreprocOption configures preprocessor fitting.
type PreprocOption func(*fitConfig)

type fitConfig struct {
	excludeTarget bool
}

// WithoutTargetColumn excludes target_country from the encoded columns.
// Used by the target predictor, where it is the label.
func WithoutTargetColumn() PreprocOption {
	return func(c *fitConfig) {
		c.excludeTarget = true
	}
}

// FitPreprocessor learns encoding and scaling parameters from the table.
func FitPreprocessor(table Table, opts ...PreprocOption) *Preprocessor {
	var cfg fitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	catCols := make([]string, 0, len(categoricalColumns))
	for _, col := range categoricalColumns {
		if cfg.excludeTarget && col == ColTargetCountry {
			continue
		}
		catCols = append(catCols, col)
	}

	p := &Preprocessor{
		CatColumns: catCols,
		Categories: make(map[string][]string, len(catCols)),
		NumMeans:   make([]float64, len(numericColumns)),
		NumStds:    make([]float64, len(numericColumns)),
	}

	// Numeric column statistics.
	colVals := make([]float64, len(table))
	for j := range numericColumns {
		for i, row := range table {
			colVals[i] = row.numericValues()[j]
		}
		mean, std := stat.MeanStdDev(colVals, nil)
		if math.IsNaN(std) {
			// Single-row tables have no sample deviation.
			std = 0
		}
		p.NumMeans[j] = mean
		p.NumStds[j] = std
	}

	// Categorical vocabularies, sorted for a stable encoding order.
	for _, col := range catCols {
		seen := make(map[string]struct{})
		for _, row := range table {
			seen[row.categoricalValue(col)] = struct{}{}
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)
		p.Categories[col] = values
	}

	p.Names = append(p.Names, numericColumns...)
	for _, col := range catCols {
		for _, v := range p.Categories[col] {
			p.Names = append(p.Names, col+"="+v)
		}
	}

	return p
}

// FeatureNames returns the names of the encoded feature vector positions.
func (p *Preprocessor) FeatureNames() []string {
	return p.Names
}

// Transform encodes every row of the table.
func (p *Preprocessor) Transform(table Table) [][]float64 {
	out := make([][]float64, len(table))
	for i, row := range table {
		out[i] = p.TransformRow(row)
	}
	return out
}

// TransformRow encodes a single row into the fitted feature space.
func (p *Preprocessor) TransformRow(row Row) []float64 {
	vec := make([]float64, 0, len(p.Names))

	for j, v := range row.numericValues() {
		if p.NumStds[j] == 0 {
			// Constant column at fit time: standardized value is zero.
			vec = append(vec, 0)
			continue
		}
		vec = append(vec, (v-p.NumMeans[j])/p.NumStds[j])
	}

	for _, col := range p.CatColumns {
		value := row.categoricalValue(col)
		for _, category := range p.Categories[col] {
			if value == category {
				vec = append(vec, 1)
			} else {
				vec = append(vec, 0)
			}
		}
	}

	return vec
}
