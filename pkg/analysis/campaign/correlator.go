// Package campaign groups attack events sharing an actor/target/technique
// fingerprint into candidate coordinated campaigns bounded by a timespan
// and a minimum event count.
package campaign

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucid-vigil/threatlens/pkg/analysis"
	tlerrors "github.com/lucid-vigil/threatlens/pkg/errors"
	"github.com/lucid-vigil/threatlens/pkg/features"
	"github.com/lucid-vigil/threatlens/pkg/feed"
)

// Correlator identifies candidate coordinated campaigns.
type Correlator struct {
	logger zerolog.Logger
}

// NewCorrelator creates a campaign Correlator.
func NewCorrelator(logger zerolog.Logger) *Correlator {
	return &Correlator{
		logger: logger.With().Str("component", "campaign_correlator").Logger(),
	}
}

// Campaign is one candidate coordinated operation: events sharing source,
// target and attack type, clustered in time.
type Campaign struct {
	SourceCountry   string    `json:"source_country"`
	TargetCountry   string    `json:"target_country"`
	AttackType      string    `json:"attack_type"`
	AttackCount     int       `json:"attack_count"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	TimespanDays    int       `json:"timespan_days"`
	AttackFrequency float64   `json:"attack_frequency"` // events per day
	DataSources     []string  `json:"data_sources"`     // distinct, sorted
	Severity        string    `json:"severity"`         // mode of the group
}

// Result reports campaign correlation. Campaigns are sorted descending by
// attack count; ties order by fingerprint so repeated runs on the same
// input yield identical lists.
type Result struct {
	analysis.Status
	Campaigns     []Campaign `json:"campaigns"`
	CampaignCount int        `json:"campaign_count"`
	TimespanDays  int        `json:"timespan_days"`
	MinAttacks    int        `json:"min_attacks"`
}

type fingerprint struct {
	source, target, attackType string
}

// Correlate groups the table by (source_country, target_country,
// attack_type), discards groups smaller than minAttacks or spanning more
// than timespanDays, and reports the survivors. The typed row schema
// guarantees the structural columns exist; a row with a zero timestamp is
// treated as the missing-timestamp condition.
func (c *Correlator) Correlate(ctx context.Context, table features.Table, timespanDays, minAttacks int) Result {
	if len(table) == 0 {
		c.logger.Warn().Msg("Empty table provided for campaign correlation")
		return Result{Status: analysis.FailErr(tlerrors.NewEmptyInput("campaign_correlator"))}
	}
	for _, row := range table {
		if row.Timestamp.IsZero() {
			return Result{Status: analysis.FailErr(
				tlerrors.NewMissingColumn("campaign_correlator", "timestamp"))}
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{Status: analysis.FailErr(err)}
	}

	groups := make(map[fingerprint][]features.Row)
	for _, row := range table {
		key := fingerprint{row.SourceCountry, row.TargetCountry, row.AttackType}
		groups[key] = append(groups[key], row)
	}

	campaigns := make([]Campaign, 0, len(groups))
	for key, rows := range groups {
		if len(rows) < minAttacks {
			continue
		}

		start, end := rows[0].Timestamp, rows[0].Timestamp
		for _, row := range rows[1:] {
			if row.Timestamp.Before(start) {
				start = row.Timestamp
			}
			if row.Timestamp.After(end) {
				end = row.Timestamp
			}
		}

		// A campaign is bounded in time by definition.
		spanDays := int(end.Sub(start).Hours() / 24)
		if spanDays > timespanDays {
			continue
		}

		// Guard divide-by-zero for same-day campaigns.
		denominator := spanDays
		if denominator < 1 {
			denominator = 1
		}

		campaigns = append(campaigns, Campaign{
			SourceCountry:   key.source,
			TargetCountry:   key.target,
			AttackType:      key.attackType,
			AttackCount:     len(rows),
			StartDate:       start,
			EndDate:         end,
			TimespanDays:    spanDays,
			AttackFrequency: float64(len(rows)) / float64(denominator),
			DataSources:     distinctSources(rows),
			Severity:        severityMode(rows),
		})
	}

	sort.SliceStable(campaigns, func(a, b int) bool {
		if campaigns[a].AttackCount != campaigns[b].AttackCount {
			return campaigns[a].AttackCount > campaigns[b].AttackCount
		}
		if campaigns[a].SourceCountry != campaigns[b].SourceCountry {
			return campaigns[a].SourceCountry < campaigns[b].SourceCountry
		}
		if campaigns[a].TargetCountry != campaigns[b].TargetCountry {
			return campaigns[a].TargetCountry < campaigns[b].TargetCountry
		}
		return campaigns[a].AttackType < campaigns[b].AttackType
	})

	c.logger.Info().Int("campaigns", len(campaigns)).Msg("Campaign correlation complete")

	return Result{
		Status:        analysis.OK(),
		Campaigns:     campaigns,
		CampaignCount: len(campaigns),
		TimespanDays:  timespanDays,
		MinAttacks:    minAttacks,
	}
}

func distinctSources(rows []features.Row) []string {
	seen := make(map[string]struct{}, 4)
	for _, row := range rows {
		seen[row.DataSource] = struct{}{}
	}
	sources := make([]string, 0, len(seen))
	for s := range seen {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}

// severityMode returns the most frequent severity in the group. Ties break
// toward the higher severity rank, which is deterministic and documented.
func severityMode(rows []features.Row) string {
	counts := make(map[string]int, 4)
	for _, row := range rows {
		counts[row.Severity]++
	}

	mode := ""
	modeCount := -1
	for severity, count := range counts {
		if count > modeCount ||
			(count == modeCount && feed.Severity(severity).Rank() > feed.Severity(mode).Rank()) {
			mode = severity
			modeCount = count
		}
	}
	return mode
}
