// Package feed defines the normalized attack event record consumed by the
// analysis components, and the loaders that produce it from raw feed files.
package feed

import (
	"time"
)

// Severity is the ordered severity category of an attack event.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Rank returns the position of the severity in the Low < Medium < High <
// Critical ordering. Unknown severities rank below Low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Event is one normalized record of a detected or reported cyber attack.
// Timestamp is always present; every other field may be missing and is
// imputed deterministically during feature engineering. Missing coordinates
// are represented as nil pointers, missing categories as empty strings.
type Event struct {
	AttackType      string     `json:"attack_type"`
	SourceCountry   string     `json:"source_country"`
	TargetCountry   string     `json:"target_country"`
	SourceLatitude  *float64   `json:"source_latitude,omitempty"`
	SourceLongitude *float64   `json:"source_longitude,omitempty"`
	TargetLatitude  *float64   `json:"target_latitude,omitempty"`
	TargetLongitude *float64   `json:"target_longitude,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
	Severity        Severity   `json:"severity"`
	DataSource      string     `json:"data_source"`
}

// timestampLayouts are the textual timestamp representations the loaders
// accept, tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp resolves a textual timestamp representation to an absolute
// instant. Returns the zero time and false when no layout matches.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// FilterWindow returns the events whose timestamp falls within the last
// `days` days relative to `now`. A non-positive window returns the input
// unchanged.
func FilterWindow(events []Event, days int, now time.Time) []Event {
	if days <= 0 {
		return events
	}
	cutoff := now.AddDate(0, 0, -days)
	filtered := make([]Event, 0, len(events))
	for _, ev := range events {
		if !ev.Timestamp.Before(cutoff) {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}
