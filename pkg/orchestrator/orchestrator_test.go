package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-vigil/threatlens/pkg/config"
	"github.com/lucid-vigil/threatlens/pkg/feed"
	"github.com/lucid-vigil/threatlens/pkg/modelstore"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ModelDir: t.TempDir(),
		Analysis: config.AnalysisConfig{
			Eps:                  0.5,
			MinSamples:           5,
			Contamination:        0.05,
			Trees:                20,
			SampleSize:           64,
			PredictionTrees:      20,
			CampaignTimespanDays: 30,
			CampaignMinAttacks:   5,
			Seed:                 42,
		},
	}
}

// testEvents builds a learnable snapshot: each source country attacks a
// fixed target with a fixed technique, spread over the last two weeks.
func testEvents(now time.Time, n int) []feed.Event {
	profiles := []struct{ source, target, attackType string }{
		{"CN", "US", "DDoS"},
		{"RU", "DE", "Phishing"},
		{"KP", "KR", "Malware"},
	}
	events := make([]feed.Event, n)
	for i := range events {
		p := profiles[i%len(profiles)]
		events[i] = feed.Event{
			AttackType:    p.attackType,
			SourceCountry: p.source,
			TargetCountry: p.target,
			Severity:      feed.SeverityMedium,
			DataSource:    "honeypot",
			Timestamp:     now.AddDate(0, 0, -(i % 14)),
		}
	}
	return events
}

func TestRun_AggregatesAllComponents(t *testing.T) {
	o, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	events := testEvents(time.Now().UTC(), 90)
	report := o.Run(context.Background(), events, 0)

	require.True(t, report.Success)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 90, report.DataSize)
	assert.False(t, report.GeneratedAt.IsZero())

	assert.True(t, report.Clustering.Success)
	assert.True(t, report.Anomaly.Success)
	assert.True(t, report.Prediction.Success)
	assert.True(t, report.Temporal.Success)
	assert.True(t, report.Campaigns.Success)

	// Each (source, target, type) group has 30 events inside 14 days.
	assert.Equal(t, 3, report.Campaigns.CampaignCount)

	assert.Same(t, report, o.LatestReport())
}

func TestRun_EmptySnapshotShortCircuits(t *testing.T) {
	o, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	report := o.Run(context.Background(), nil, 0)

	require.False(t, report.Success)
	assert.Equal(t, 0, report.DataSize)
	assert.False(t, report.Clustering.Success)
	assert.False(t, report.Prediction.Success)
	assert.Same(t, report, o.LatestReport())
}

func TestRun_TimeFilterExcludesStaleEvents(t *testing.T) {
	o, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	now := time.Now().UTC()
	recent := testEvents(now, 30)
	stale := testEvents(now.AddDate(0, 0, -120), 30)

	report := o.Run(context.Background(), append(recent, stale...), 30)

	require.True(t, report.Success)
	assert.Equal(t, 30, report.DataSize)
	assert.Equal(t, 30, report.TimeFilterDays)
}

func TestRun_PersistsAllThreeModelKinds(t *testing.T) {
	o, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	report := o.Run(context.Background(), testEvents(time.Now().UTC(), 90), 0)
	require.True(t, report.Success)

	models, err := o.Models()
	require.NoError(t, err)
	for _, kind := range modelstore.Kinds() {
		assert.Len(t, models[kind], 1, "expected one persisted %s model", kind)
	}
}

func TestLoadModel(t *testing.T) {
	o, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	report := o.Run(context.Background(), testEvents(time.Now().UTC(), 90), 0)
	require.True(t, report.Success)
	require.NotEmpty(t, report.Prediction.ModelName)

	model, err := o.LoadModel(modelstore.KindPrediction, report.Prediction.ModelName)
	require.NoError(t, err)
	assert.NotNil(t, model)

	_, err = o.LoadModel(modelstore.Kind("bogus"), "whatever")
	assert.Error(t, err)
}

func TestPredict_BeforeAnyRunFails(t *testing.T) {
	o, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	result := o.Predict(context.Background(), "CN", "DDoS", 30)
	assert.False(t, result.Success)
}

func TestPredict_AfterRunRanksTargets(t *testing.T) {
	o, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	report := o.Run(context.Background(), testEvents(time.Now().UTC(), 120), 0)
	require.True(t, report.Success)

	result := o.Predict(context.Background(), "CN", "DDoS", 30)
	require.True(t, result.Success)
	require.NotEmpty(t, result.Predictions)
	assert.Equal(t, "US", result.Predictions[0].TargetCountry)
}

func TestRunPeriodic_StopsOnCancel(t *testing.T) {
	o, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	var calls atomic.Int32
	source := func(ctx context.Context) ([]feed.Event, error) {
		calls.Add(1)
		return testEvents(time.Now().UTC(), 30), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.RunPeriodic(ctx, 10*time.Millisecond, 0, source)
		close(done)
	}()

	// Wait for the immediate first run plus at least one tick.
	require.Eventually(t, func() bool { return calls.Load() >= 2 },
		5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunPeriodic did not stop after cancellation")
	}
	assert.NotNil(t, o.LatestReport())
}
