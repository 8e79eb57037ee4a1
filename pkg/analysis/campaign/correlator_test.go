package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-vigil/threatlens/pkg/feed"
	"github.com/lucid-vigil/threatlens/pkg/features"
)

func TestCorrelate_EmptyTable(t *testing.T) {
	c := NewCorrelator(zerolog.Nop())
	result := c.Correlate(context.Background(), features.Table{}, 30, 5)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)
}

func TestCorrelate_SingleCampaign(t *testing.T) {
	// 20 events, one fingerprint, spanning exactly 5 days.
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	events := make([]feed.Event, 20)
	for i := range events {
		events[i] = feed.Event{
			AttackType:    "DDoS",
			SourceCountry: "X",
			TargetCountry: "Y",
			Severity:      feed.SeverityHigh,
			DataSource:    "honeypot",
			Timestamp:     start.Add(time.Duration(i) * 6 * time.Hour), // 19*6h = 114h < 5d
		}
	}
	events[19].Timestamp = start.AddDate(0, 0, 5) // pin the span to 5 days

	c := NewCorrelator(zerolog.Nop())
	result := c.Correlate(context.Background(), features.Engineer(events), 30, 5)

	require.True(t, result.Success)
	require.Len(t, result.Campaigns, 1)

	campaign := result.Campaigns[0]
	assert.Equal(t, "X", campaign.SourceCountry)
	assert.Equal(t, "Y", campaign.TargetCountry)
	assert.Equal(t, "DDoS", campaign.AttackType)
	assert.Equal(t, 20, campaign.AttackCount)
	assert.Equal(t, 5, campaign.TimespanDays)
	assert.InDelta(t, 4.0, campaign.AttackFrequency, 1e-9)
	assert.Equal(t, []string{"honeypot"}, campaign.DataSources)
	assert.Equal(t, string(feed.SeverityHigh), campaign.Severity)
}

func TestCorrelate_DiscardsSmallAndLongGroups(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	var events []feed.Event

	// Group under the minimum count.
	for i := 0; i < 3; i++ {
		events = append(events, feed.Event{
			AttackType: "Phishing", SourceCountry: "A", TargetCountry: "B",
			Timestamp: start.AddDate(0, 0, i),
		})
	}
	// Group exceeding the timespan bound.
	for i := 0; i < 8; i++ {
		events = append(events, feed.Event{
			AttackType: "Malware", SourceCountry: "C", TargetCountry: "D",
			Timestamp: start.AddDate(0, 0, i*20), // 140-day span
		})
	}
	// Qualifying group.
	for i := 0; i < 6; i++ {
		events = append(events, feed.Event{
			AttackType: "DDoS", SourceCountry: "E", TargetCountry: "F",
			Timestamp: start.AddDate(0, 0, i),
		})
	}

	c := NewCorrelator(zerolog.Nop())
	result := c.Correlate(context.Background(), features.Engineer(events), 30, 5)

	require.True(t, result.Success)
	require.Len(t, result.Campaigns, 1)
	assert.Equal(t, "E", result.Campaigns[0].SourceCountry)
	assert.Equal(t, 1, result.CampaignCount)
}

func TestCorrelate_SameDayCampaignFrequency(t *testing.T) {
	// All events on the same day: span 0, frequency divides by 1.
	ts := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	events := make([]feed.Event, 7)
	for i := range events {
		events[i] = feed.Event{
			AttackType: "DDoS", SourceCountry: "X", TargetCountry: "Y",
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
		}
	}

	c := NewCorrelator(zerolog.Nop())
	result := c.Correlate(context.Background(), features.Engineer(events), 30, 5)

	require.True(t, result.Success)
	require.Len(t, result.Campaigns, 1)
	assert.Equal(t, 0, result.Campaigns[0].TimespanDays)
	assert.InDelta(t, 7.0, result.Campaigns[0].AttackFrequency, 1e-9)
}

func TestCorrelate_SortedByAttackCount(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	var events []feed.Event
	addGroup := func(source string, n int) {
		for i := 0; i < n; i++ {
			events = append(events, feed.Event{
				AttackType: "DDoS", SourceCountry: source, TargetCountry: "Y",
				Timestamp: start.AddDate(0, 0, i%10),
			})
		}
	}
	addGroup("SMALL", 6)
	addGroup("BIG", 12)
	addGroup("MID", 9)

	c := NewCorrelator(zerolog.Nop())
	result := c.Correlate(context.Background(), features.Engineer(events), 30, 5)

	require.True(t, result.Success)
	require.Len(t, result.Campaigns, 3)
	assert.Equal(t, "BIG", result.Campaigns[0].SourceCountry)
	assert.Equal(t, "MID", result.Campaigns[1].SourceCountry)
	assert.Equal(t, "SMALL", result.Campaigns[2].SourceCountry)
}

func TestCorrelate_Idempotent(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	var events []feed.Event
	for i := 0; i < 30; i++ {
		events = append(events, feed.Event{
			AttackType:    []string{"DDoS", "Phishing"}[i%2],
			SourceCountry: []string{"CN", "RU", "KP"}[i%3],
			TargetCountry: "US",
			Severity:      feed.SeverityMedium,
			DataSource:    []string{"osint", "honeypot"}[i%2],
			Timestamp:     start.AddDate(0, 0, i%12),
		})
	}
	table := features.Engineer(events)

	c := NewCorrelator(zerolog.Nop())
	first := c.Correlate(context.Background(), table, 30, 3)
	second := c.Correlate(context.Background(), table, 30, 3)

	require.True(t, first.Success)
	assert.Equal(t, first.Campaigns, second.Campaigns)
}

func TestSeverityMode_TieBreaksTowardHigherRank(t *testing.T) {
	rows := []features.Row{
		{Severity: string(feed.SeverityLow)},
		{Severity: string(feed.SeverityLow)},
		{Severity: string(feed.SeverityCritical)},
		{Severity: string(feed.SeverityCritical)},
	}
	assert.Equal(t, string(feed.SeverityCritical), severityMode(rows))
}
