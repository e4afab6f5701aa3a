package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/intake/core"
)

func TestQualityScoreBounds(t *testing.T) {
	records := []core.Document{
		{},
		{"name": "Alice", "email": "alice@example.com", "amount": 10.0},
		{"name": "n/a", "email": "broken", "amount": "many"},
		{"a": nil, "b": "", "c": "x"},
	}
	for _, record := range records {
		score := QualityScore(record)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestQualityScoreCleanRecord(t *testing.T) {
	record := core.Document{
		"name":   "Alice Liddell",
		"email":  "alice@example.com",
		"amount": 12.5,
		"city":   "Rotterdam",
	}
	assert.InDelta(t, 1.0, QualityScore(record), 0.001)
}

func TestQualityScorePenalizesDefects(t *testing.T) {
	clean := core.Document{"name": "Alice", "email": "alice@example.com"}
	dirty := core.Document{"name": "n/a", "email": "not-an-email"}

	assert.Greater(t, QualityScore(clean), QualityScore(dirty))
}

func TestQualityScoreMissingDimensionsNeutral(t *testing.T) {
	// No format-carrying fields, no cross-field pairs, no strings: only
	// completeness is measurable and it is full.
	record := core.Document{"payload": map[string]any{"k": "v"}, "flag": true}
	assert.InDelta(t, 1.0, QualityScore(record), 0.001)
}

func TestQualityConsistencyDateOrder(t *testing.T) {
	ordered := core.Document{
		"start_date": "2026-01-01",
		"end_date":   "2026-02-01",
	}
	inverted := core.Document{
		"start_date": "2026-02-01",
		"end_date":   "2026-01-01",
	}
	assert.Greater(t, QualityScore(ordered), QualityScore(inverted))
}

func TestQualityValidityURL(t *testing.T) {
	good := core.Document{"source_url": "https://example.com/feed"}
	bad := core.Document{"source_url": "not a url"}
	assert.Greater(t, QualityScore(good), QualityScore(bad))
}

func TestQualityConsistencyLineTotal(t *testing.T) {
	matching := core.Document{"quantity": 3.0, "price": 2.5, "total": 7.5}
	mismatched := core.Document{"quantity": 3.0, "price": 2.5, "total": 99.0}
	assert.Greater(t, QualityScore(matching), QualityScore(mismatched))
}

func TestQualityAccuracyPercentageRange(t *testing.T) {
	sane := core.Document{"discount_pct": 15.0}
	insane := core.Document{"discount_pct": 400.0}
	assert.Greater(t, QualityScore(sane), QualityScore(insane))
}

func TestQualityIgnoresMarkerFields(t *testing.T) {
	record := core.Document{
		"name":       "Alice",
		"_validated": true,
		"_enriched":  true,
	}
	assert.InDelta(t, 1.0, QualityScore(record), 0.001)
}

func TestQualityStageDropsLowScores(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledStages = []Stage{StageQualityCheck}
	cfg.MinQualityScore = 0.8
	p := newTestPipeline(t, WithConfig(cfg))

	out, errs := p.qualityStage(context.Background(), []core.Document{
		{"name": "Alice", "email": "alice@example.com"},
		{"name": "n/a", "email": "junk", "amount": "lots"},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "Alice", out[0]["name"])
	assert.Contains(t, out[0], "_quality_score")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "below minimum")
}
