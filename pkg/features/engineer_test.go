package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-vigil/threatlens/pkg/feed"
)

func fp(v float64) *float64 { return &v }

func TestEngineer_Empty(t *testing.T) {
	assert.Empty(t, Engineer(nil))
	assert.Empty(t, Engineer([]feed.Event{}))
}

func TestEngineer_RowCountPreserved(t *testing.T) {
	events := syntheticEvents(37)
	table := Engineer(events)
	assert.Len(t, table, len(events))
}

func TestEngineer_TemporalDecomposition(t *testing.T) {
	// 2024-03-02 is a Saturday.
	ts := time.Date(2024, 3, 2, 17, 45, 0, 0, time.UTC)
	table := Engineer([]feed.Event{{AttackType: "DDoS", Timestamp: ts}})
	require.Len(t, table, 1)

	row := table[0]
	assert.Equal(t, 17, row.HourOfDay)
	assert.Equal(t, 5, row.DayOfWeek) // Monday=0, Saturday=5
	assert.Equal(t, 3, row.Month)
	assert.Equal(t, 2024, row.Year)
	assert.Equal(t, 1, row.Weekend)

	// Monday is not a weekend.
	monday := Engineer([]feed.Event{{Timestamp: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}})[0]
	assert.Equal(t, 0, monday.DayOfWeek)
	assert.Equal(t, 0, monday.Weekend)
}

func TestEngineer_MedianImputation(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []feed.Event{
		{Timestamp: base, SourceLatitude: fp(10)},
		{Timestamp: base, SourceLatitude: fp(20)},
		{Timestamp: base, SourceLatitude: fp(40)},
		{Timestamp: base, SourceLatitude: nil},
	}

	table := Engineer(events)
	// Median of {10, 20, 40} is 20.
	assert.InDelta(t, 20.0, table[3].SourceLatitude, 1e-9)
	// Present values pass through unchanged.
	assert.InDelta(t, 40.0, table[2].SourceLatitude, 1e-9)
}

func TestEngineer_DegenerateColumnFallsBackToZero(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []feed.Event{
		{Timestamp: base},
		{Timestamp: base},
	}

	table := Engineer(events)
	for _, row := range table {
		assert.Zero(t, row.SourceLatitude)
		assert.Zero(t, row.TargetLongitude)
	}
}

func TestEngineer_CategoricalSentinel(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	table := Engineer([]feed.Event{{Timestamp: base, AttackType: "DDoS"}})
	row := table[0]

	assert.Equal(t, "DDoS", row.AttackType)
	assert.Equal(t, Unknown, row.SourceCountry)
	assert.Equal(t, Unknown, row.TargetCountry)
	assert.Equal(t, Unknown, row.DataSource)
	assert.Equal(t, Unknown, row.Severity)
}

func TestEngineer_FrequencyEncodingIsDatasetRelative(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []feed.Event{
		{Timestamp: base, SourceCountry: "CN", AttackType: "DDoS"},
		{Timestamp: base, SourceCountry: "CN", AttackType: "DDoS"},
		{Timestamp: base, SourceCountry: "RU", AttackType: "Phishing"},
	}

	table := Engineer(events)
	assert.InDelta(t, 2.0, table[0].SourceCountryFrequency, 1e-9)
	assert.InDelta(t, 1.0, table[2].SourceCountryFrequency, 1e-9)
	assert.InDelta(t, 2.0, table[1].AttackTypeFrequency, 1e-9)

	// The same row in a smaller slice gets a different count: the
	// encoding is relative to the invocation's dataset, by contract.
	smaller := Engineer(events[:1])
	assert.InDelta(t, 1.0, smaller[0].SourceCountryFrequency, 1e-9)
}

func syntheticEvents(n int) []feed.Event {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	countries := []string{"CN", "RU", "US", "KP", ""}
	types := []string{"DDoS", "Phishing", "Malware"}
	events := make([]feed.Event, 0, n)
	for i := 0; i < n; i++ {
		ev := feed.Event{
			AttackType:    types[i%len(types)],
			SourceCountry: countries[i%len(countries)],
			TargetCountry: countries[(i+1)%len(countries)],
			Timestamp:     base.Add(time.Duration(i) * 7 * time.Hour),
			Severity:      feed.SeverityMedium,
			DataSource:    "synthetic",
		}
		if i%2 == 0 {
			lat := float64(i % 90)
			lon := float64(i % 180)
			ev.SourceLatitude = &lat
			ev.SourceLongitude = &lon
		}
		events = append(events, ev)
	}
	return events
}
