package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
)

// Loader reads attack events from CSV feed files. The header row names the
// columns; any column except timestamp may be absent. Rows with an
// unparseable or missing timestamp are skipped and counted, not fatal.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a new CSV feed loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "feed_loader").Logger(),
	}
}

// LoadFile reads all events from the named CSV file.
func (l *Loader) LoadFile(filename string) ([]Event, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	events, err := l.Load(file)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", filename, err)
	}
	return events, nil
}

// Load reads all events from r. The first record is the header.
func (l *Loader) Load(r io.Reader) ([]Event, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	if _, ok := cols["timestamp"]; !ok {
		return nil, fmt.Errorf("feed has no timestamp column")
	}

	var events []Event
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		ev, ok := parseEvent(record, cols)
		if !ok {
			skipped++
			continue
		}
		events = append(events, ev)
	}

	if skipped > 0 {
		l.logger.Warn().Int("skipped", skipped).Msg("Skipped feed rows without a resolvable timestamp")
	}
	l.logger.Debug().Int("events", len(events)).Msg("Feed loaded")

	return events, nil
}

func parseEvent(record []string, cols map[string]int) (Event, bool) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	ts, ok := ParseTimestamp(field("timestamp"))
	if !ok {
		return Event{}, false
	}

	return Event{
		AttackType:      field("attack_type"),
		SourceCountry:   field("source_country"),
		TargetCountry:   field("target_country"),
		SourceLatitude:  parseCoord(field("source_latitude")),
		SourceLongitude: parseCoord(field("source_longitude")),
		TargetLatitude:  parseCoord(field("target_latitude")),
		TargetLongitude: parseCoord(field("target_longitude")),
		Timestamp:       ts,
		Severity:        Severity(field("severity")),
		DataSource:      field("data_source"),
	}, true
}

func parseCoord(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
