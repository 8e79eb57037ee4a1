// Package temporal computes attack-volume histograms over hour, weekday
// and month, and detects dominant periodicities in the daily event count
// series via frequency-domain analysis.
package temporal

import (
	"context"
	"math"
	"math/cmplx"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/lucid-vigil/threatlens/pkg/analysis"
	tlerrors "github.com/lucid-vigil/threatlens/pkg/errors"
	"github.com/lucid-vigil/threatlens/pkg/features"
)

// minSpectralSpanDays is the shortest event span for which periodicity
// detection is attempted; anything shorter has too few daily samples for
// spectral estimation.
const minSpectralSpanDays = 14

var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// Analyzer computes temporal attack patterns.
type Analyzer struct {
	logger zerolog.Logger
}

// NewAnalyzer creates a temporal Analyzer.
func NewAnalyzer(logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		logger: logger.With().Str("component", "temporal_analyzer").Logger(),
	}
}

// Pattern is one detected periodicity: a recurring interval in days at
// which attack volume peaks, with its spectral magnitude.
type Pattern struct {
	PeriodDays float64 `json:"period_days"` // rounded to one decimal
	Strength   float64 `json:"strength"`
}

// Result reports the temporal analysis.
type Result struct {
	analysis.Status
	HourlyPattern  [24]int   `json:"hourly_pattern"`
	DailyPattern   [7]int    `json:"daily_pattern"`  // Monday=0
	MonthlyPattern [12]int   `json:"monthly_pattern"` // January at index 0
	PeakHour       int       `json:"peak_hour"`
	PeakDay        string    `json:"peak_day"`
	PeakMonth      string    `json:"peak_month"`
	Patterns       []Pattern `json:"periodic_patterns"` // top 3 by strength
}

// Analyze computes histograms, peaks and periodicities for the table.
func (a *Analyzer) Analyze(ctx context.Context, table features.Table) Result {
	if len(table) == 0 {
		a.logger.Warn().Msg("Empty table provided for temporal analysis")
		return Result{Status: analysis.FailErr(tlerrors.NewEmptyInput("temporal_analyzer"))}
	}
	for _, row := range table {
		if row.Timestamp.IsZero() {
			return Result{Status: analysis.FailErr(
				tlerrors.NewMissingColumn("temporal_analyzer", "timestamp"))}
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{Status: analysis.FailErr(err)}
	}

	result := Result{Status: analysis.OK()}
	for _, row := range table {
		result.HourlyPattern[row.HourOfDay]++
		result.DailyPattern[row.DayOfWeek]++
		result.MonthlyPattern[row.Month-1]++
	}

	result.PeakHour = argmax(result.HourlyPattern[:])
	result.PeakDay = dayNames[argmax(result.DailyPattern[:])]
	result.PeakMonth = monthNames[argmax(result.MonthlyPattern[:])]
	result.Patterns = a.detectPeriodicities(table)

	a.logger.Info().
		Int("peak_hour", result.PeakHour).
		Str("peak_day", result.PeakDay).
		Int("patterns", len(result.Patterns)).
		Msg("Temporal analysis complete")

	return result
}

// detectPeriodicities resamples events to one count per day and runs a real
// FFT over the series. Frequency components above 10% of the strongest
// non-DC magnitude are converted to periods in days; periods longer than
// one day are kept and the top 3 by magnitude returned.
func (a *Analyzer) detectPeriodicities(table features.Table) []Pattern {
	minTs, maxTs := table[0].Timestamp, table[0].Timestamp
	for _, row := range table[1:] {
		if row.Timestamp.Before(minTs) {
			minTs = row.Timestamp
		}
		if row.Timestamp.After(maxTs) {
			maxTs = row.Timestamp
		}
	}
	if minTs.AddDate(0, 0, minSpectralSpanDays).After(maxTs) {
		return nil
	}

	start := truncateDay(minTs)
	nDays := int(truncateDay(maxTs).Sub(start).Hours()/24) + 1
	daily := make([]float64, nDays)
	for _, row := range table {
		daily[int(truncateDay(row.Timestamp).Sub(start).Hours()/24)]++
	}

	fft := fourier.NewFFT(nDays)
	coeffs := fft.Coefficients(nil, daily)

	// Skip the DC component at index 0.
	maxMag := 0.0
	mags := make([]float64, len(coeffs))
	for i := 1; i < len(coeffs); i++ {
		mags[i] = cmplx.Abs(coeffs[i])
		if mags[i] > maxMag {
			maxMag = mags[i]
		}
	}

	var patterns []Pattern
	for i := 1; i < len(coeffs); i++ {
		if mags[i] <= 0.1*maxMag {
			continue
		}
		period := float64(nDays) / float64(i)
		if period <= 1 {
			continue
		}
		patterns = append(patterns, Pattern{
			PeriodDays: math.Round(period*10) / 10,
			Strength:   mags[i],
		})
	}

	sort.SliceStable(patterns, func(a, b int) bool {
		return patterns[a].Strength > patterns[b].Strength
	})
	if len(patterns) > 3 {
		patterns = patterns[:3]
	}
	return patterns
}

func argmax(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

func truncateDay(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
}
