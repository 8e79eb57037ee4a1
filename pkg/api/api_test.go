package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-vigil/threatlens/pkg/config"
	"github.com/lucid-vigil/threatlens/pkg/feed"
	"github.com/lucid-vigil/threatlens/pkg/orchestrator"
)

func testServer(t *testing.T) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	cfg := &config.Config{
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
	orch, err := orchestrator.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	return NewServer("0", orch, zerolog.Nop()), orch
}

func runOnce(t *testing.T, orch *orchestrator.Orchestrator) {
	t.Helper()
	now := time.Now().UTC()
	events := make([]feed.Event, 90)
	profiles := []struct{ source, target, attackType string }{
		{"CN", "US", "DDoS"},
		{"RU", "DE", "Phishing"},
		{"KP", "KR", "Malware"},
	}
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
	report := orch.Run(context.Background(), events, 0)
	require.True(t, report.Success)
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.healthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReport_BeforeFirstRun(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.reportHandler(rec, httptest.NewRequest(http.MethodGet, "/api/report", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReport_AfterRun(t *testing.T) {
	s, orch := testServer(t)
	runOnce(t, orch)

	rec := httptest.NewRecorder()
	s.reportHandler(rec, httptest.NewRequest(http.MethodGet, "/api/report", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["run_id"])
}

func TestModels_ListsPersistedArtifacts(t *testing.T) {
	s, orch := testServer(t)
	runOnce(t, orch)

	rec := httptest.NewRecorder()
	s.modelsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["clustering"], 1)
	assert.Len(t, body["anomaly"], 1)
	assert.Len(t, body["prediction"], 1)
}

func TestPredict_ValidatesQueryParameters(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.predictHandler(rec, httptest.NewRequest(http.MethodGet, "/api/predict?source=CN", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.predictHandler(rec, httptest.NewRequest(http.MethodGet, "/api/predict?source=CN&type=DDoS&days=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredict_BeforeRunConflicts(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.predictHandler(rec, httptest.NewRequest(http.MethodGet, "/api/predict?source=CN&type=DDoS", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPredict_AfterRun(t *testing.T) {
	s, orch := testServer(t)
	runOnce(t, orch)

	rec := httptest.NewRecorder()
	s.predictHandler(rec, httptest.NewRequest(http.MethodGet, "/api/predict?source=CN&type=DDoS&days=30", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
}
