package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/intake/core"
	storagebadger "github.com/poiesic/intake/storage/badger"
)

func enrichmentPipeline(t *testing.T, rule EnrichmentRule, opts ...Option) *Standard {
	t.Helper()
	cfg := DefaultConfig()
	cfg.EnabledStages = []Stage{StageEnrichment}
	cfg.EnrichmentRules = []EnrichmentRule{rule}
	return newTestPipeline(t, append([]Option{WithConfig(cfg)}, opts...)...)
}

func TestLookupEnrichment(t *testing.T) {
	_, _, backend, err := storagebadger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	lookup, err := storagebadger.NewLookup(backend)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, lookup.Put(ctx, "regions", "EMEA", map[string]any{"tz": "CET"}))

	p := enrichmentPipeline(t, EnrichmentRule{
		Name:        "region-info",
		TargetField: "region_info",
		SourceType:  "lookup_table",
		KeyFields:   []string{"region"},
		Config:      core.Document{"table": "regions"},
	}, WithLookup(lookup))

	out, errs := p.enrichStage(ctx, []core.Document{{"region": "EMEA"}})

	require.Empty(t, errs)
	require.Len(t, out, 1)
	info, ok := out[0]["region_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CET", info["tz"])
	assert.True(t, asBool(out[0]["_enriched"]))
}

func TestAPIEnrichment(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"score": 0.9, "id": r.URL.Path})
	}))
	defer server.Close()

	p := enrichmentPipeline(t, EnrichmentRule{
		Name:        "score",
		TargetField: "score",
		SourceType:  "api_call",
		KeyFields:   []string{"id"},
		Config: core.Document{
			"url":            server.URL + "/items/{id}",
			"auth_token":     "token-123",
			"response_field": "score",
		},
		CacheResults: true,
		CacheTTL:     time.Minute,
	})

	ctx := context.Background()
	out, errs := p.enrichStage(ctx, []core.Document{{"id": "a1"}})
	require.Empty(t, errs)
	assert.Equal(t, 0.9, out[0]["score"])

	// Same key again: served from cache, no second request.
	out, errs = p.enrichStage(ctx, []core.Document{{"id": "a1"}})
	require.Empty(t, errs)
	assert.Equal(t, 0.9, out[0]["score"])
	assert.Equal(t, int64(1), calls.Load())
}

func TestAPIEnrichmentFailureKeepsRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := enrichmentPipeline(t, EnrichmentRule{
		Name:        "flaky",
		TargetField: "extra",
		SourceType:  "api_call",
		KeyFields:   []string{"id"},
		Config:      core.Document{"url": server.URL},
	})

	out, errs := p.enrichStage(context.Background(), []core.Document{{"id": "x"}})

	require.Len(t, out, 1)
	assert.NotContains(t, out[0], "extra")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "500")
}

func TestCalculationEnrichment(t *testing.T) {
	p := enrichmentPipeline(t, EnrichmentRule{
		Name:        "avg-reading",
		TargetField: "avg",
		SourceType:  "calculation",
		KeyFields:   []string{"r1", "r2", "r3"},
		Config:      core.Document{"operation": "mean"},
	})

	out, errs := p.enrichStage(context.Background(), []core.Document{
		{"r1": 1.0, "r2": 2.0, "r3": 3.0},
	})

	require.Empty(t, errs)
	assert.Equal(t, 2.0, out[0]["avg"])
}

func TestRatioCalculation(t *testing.T) {
	p := enrichmentPipeline(t, EnrichmentRule{
		Name:        "conversion",
		TargetField: "rate",
		SourceType:  "calculation",
		KeyFields:   []string{"hits", "visits"},
		Config:      core.Document{"operation": "ratio"},
	})

	out, errs := p.enrichStage(context.Background(), []core.Document{
		{"hits": 5, "visits": 20},
		{"hits": 5, "visits": 0},
	})

	require.Empty(t, errs)
	assert.Equal(t, 0.25, out[0]["rate"])
	assert.NotContains(t, out[1], "rate")
}

func TestEnrichedMarkerSkips(t *testing.T) {
	p := enrichmentPipeline(t, EnrichmentRule{
		Name:        "calc",
		TargetField: "avg",
		SourceType:  "calculation",
		KeyFields:   []string{"v"},
		Config:      core.Document{"operation": "mean"},
	})

	out, errs := p.enrichStage(context.Background(), []core.Document{
		{"_enriched": true, "v": 1.0},
	})

	require.Empty(t, errs)
	assert.NotContains(t, out[0], "avg")
}

func TestUnknownEnrichmentSource(t *testing.T) {
	p := enrichmentPipeline(t, EnrichmentRule{
		Name:        "bad",
		TargetField: "x",
		SourceType:  "carrier_pigeon",
	})

	_, errs := p.enrichStage(context.Background(), []core.Document{{"k": "v"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "carrier_pigeon")
}
