// Package features normalizes raw attack events into a model-ready feature
// table: timestamp decomposition, missing-value imputation, and frequency
// encodings.
package features

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	tlerrors "github.com/lucid-vigil/threatlens/pkg/errors"
	"github.com/lucid-vigil/threatlens/pkg/feed"
)

// Unknown is the reserved sentinel substituted for missing categorical
// values. It is distinct from any real category value in the feeds.
const Unknown = "unknown"

// Row is one engineered feature row: the normalized event fields plus the
// derived temporal and frequency features.
type Row struct {
	AttackType    string
	SourceCountry string
	TargetCountry string
	DataSource    string
	Severity      string

	SourceLatitude  float64
	SourceLongitude float64
	TargetLatitude  float64
	TargetLongitude float64

	Timestamp time.Time

	HourOfDay int // [0,23]
	DayOfWeek int // Monday=0 .. Sunday=6
	Month     int // [1,12]
	Year      int
	Weekend   int // 1 when DayOfWeek >= 5

	// Frequency encodings are dataset-relative: they count occurrences in
	// the table of the same Engineer invocation, never a global corpus.
	SourceCountryFrequency float64
	AttackTypeFrequency    float64
}

// Table is an engineered feature table.
type Table []Row

// Engineer normalizes a slice of raw events into a feature table. An empty
// input yields an empty table, not an error: callers treat empty as
// "nothing to analyze".
//
// Imputation is deterministic: each numeric column's missing values take
// that column's median over the present values (an entirely-missing column
// falls back to zero), and missing categorical values take the Unknown
// sentinel. Frequency encodings are recomputed per invocation over the
// current slice only, so their scale depends on the dataset size.
func Engineer(events []feed.Event) Table {
	if len(events) == 0 {
		return Table{}
	}

	srcLatMed := medianOf(events, func(ev feed.Event) *float64 { return ev.SourceLatitude }, "source_latitude")
	srcLonMed := medianOf(events, func(ev feed.Event) *float64 { return ev.SourceLongitude }, "source_longitude")
	tgtLatMed := medianOf(events, func(ev feed.Event) *float64 { return ev.TargetLatitude }, "target_latitude")
	tgtLonMed := medianOf(events, func(ev feed.Event) *float64 { return ev.TargetLongitude }, "target_longitude")

	countryCounts := make(map[string]float64, 16)
	typeCounts := make(map[string]float64, 16)
	for _, ev := range events {
		countryCounts[categorical(ev.SourceCountry)]++
		typeCounts[categorical(ev.AttackType)]++
	}

	table := make(Table, 0, len(events))
	for _, ev := range events {
		srcCountry := categorical(ev.SourceCountry)
		attackType := categorical(ev.AttackType)

		dow := (int(ev.Timestamp.Weekday()) + 6) % 7 // Monday=0
		weekend := 0
		if dow >= 5 {
			weekend = 1
		}

		table = append(table, Row{
			AttackType:    attackType,
			SourceCountry: srcCountry,
			TargetCountry: categorical(ev.TargetCountry),
			DataSource:    categorical(ev.DataSource),
			Severity:      categorical(string(ev.Severity)),

			SourceLatitude:  impute(ev.SourceLatitude, srcLatMed),
			SourceLongitude: impute(ev.SourceLongitude, srcLonMed),
			TargetLatitude:  impute(ev.TargetLatitude, tgtLatMed),
			TargetLongitude: impute(ev.TargetLongitude, tgtLonMed),

			Timestamp: ev.Timestamp,

			HourOfDay: ev.Timestamp.Hour(),
			DayOfWeek: dow,
			Month:     int(ev.Timestamp.Month()),
			Year:      ev.Timestamp.Year(),
			Weekend:   weekend,

			SourceCountryFrequency: countryCounts[srcCountry],
			AttackTypeFrequency:    typeCounts[attackType],
		})
	}

	return table
}

func categorical(v string) string {
	if v == "" {
		return Unknown
	}
	return v
}

func impute(v *float64, median float64) float64 {
	if v == nil {
		return median
	}
	return *v
}

// medianOf computes the median of the present values of a nullable numeric
// column. A column with no present values is degenerate; the documented
// fallback is zero, not a NaN leaking downstream.
func medianOf(events []feed.Event, get func(feed.Event) *float64, column string) float64 {
	present := make([]float64, 0, len(events))
	for _, ev := range events {
		if v := get(ev); v != nil {
			present = append(present, *v)
		}
	}
	if len(present) == 0 {
		log.Warn().Err(tlerrors.NewDegenerateColumn("feature_engineer", column)).
			Msg("Numeric column entirely missing, imputing zero")
		return 0
	}
	sort.Float64s(present)
	return stat.Quantile(0.5, stat.LinInterp, present, nil)
}
