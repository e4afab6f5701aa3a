package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/intake/core"
)

func compliancePipeline(t *testing.T, rules core.Document) *Standard {
	t.Helper()
	cfg := DefaultConfig()
	cfg.EnabledStages = []Stage{StageComplianceCheck}
	cfg.ComplianceRules = rules
	return newTestPipeline(t, WithConfig(cfg))
}

func TestGDPRConsentRequired(t *testing.T) {
	p := compliancePipeline(t, core.Document{"gdpr": true})

	out, errs := p.complianceStage(context.Background(), []core.Document{
		{"name": "with consent", "consent_given": true},
		{"name": "without consent"},
		{"name": "explicit refusal", "consent_given": false},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "with consent", out[0]["name"])
	assert.True(t, asBool(out[0]["_compliance_checked"]))
	assert.Len(t, errs, 2)
}

func TestGDPRComplianceKeyAlias(t *testing.T) {
	p := compliancePipeline(t, core.Document{"gdpr_compliance": true})

	out, errs := p.complianceStage(context.Background(), []core.Document{
		{"email": "person@example.com"},
		{"email": "other@example.com", "consent_given": true},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "other@example.com", out[0]["email"])
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "consent")
}

func TestCCPAOptOut(t *testing.T) {
	p := compliancePipeline(t, core.Document{"ccpa": true})

	out, errs := p.complianceStage(context.Background(), []core.Document{
		{"name": "staying"},
		{"name": "leaving", "opt_out": true},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "staying", out[0]["name"])
	assert.Len(t, errs, 1)
}

func TestCCPAComplianceKeyAlias(t *testing.T) {
	p := compliancePipeline(t, core.Document{"ccpa_compliance": true})

	out, _ := p.complianceStage(context.Background(), []core.Document{
		{"name": "leaving", "opt_out": true},
	})

	assert.Empty(t, out)
}

func TestUnmaskedPIIRejected(t *testing.T) {
	p := compliancePipeline(t, core.Document{"pii_fields": []any{"email", "ssn"}})

	out, errs := p.complianceStage(context.Background(), []core.Document{
		{"email": "a****@example.com", "ssn": "*****6789"},
		{"email": "raw@example.com"},
		{"ssn": "123456789"},
	})

	require.Len(t, out, 1)
	assert.Len(t, errs, 2)
}

func TestPIIDetectionByFieldName(t *testing.T) {
	p := compliancePipeline(t, core.Document{"detect_pii": true})

	out, errs := p.complianceStage(context.Background(), []core.Document{
		{"contact_email": "raw@example.com"},
		{"contact_email": "r***@example.com"},
		{"note": "mail me at raw@example.com"},
	})

	require.Len(t, out, 2)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "contact_email")
}

func TestRetentionLimit(t *testing.T) {
	p := compliancePipeline(t, core.Document{"max_age_days": 30.0})

	recent := time.Now().Add(-24 * time.Hour).Format(time.RFC3339)
	stale := time.Now().Add(-90 * 24 * time.Hour).Format(time.RFC3339)

	out, errs := p.complianceStage(context.Background(), []core.Document{
		{"name": "fresh", "created_at": recent},
		{"name": "expired", "created_at": stale},
		{"name": "undated"},
	})

	require.Len(t, out, 2)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "retention")
}

func TestComplianceFieldConstraints(t *testing.T) {
	p := compliancePipeline(t, core.Document{
		"required_fields": []any{"region"},
		"field_types":     map[string]any{"count": "number"},
		"field_ranges":    map[string]any{"count": map[string]any{"min": 0.0, "max": 100.0}},
		"field_patterns":  map[string]any{"region": "^[A-Z]{2}$"},
	})

	out, errs := p.complianceStage(context.Background(), []core.Document{
		{"region": "NL", "count": 10.0},
		{"count": 10.0},
		{"region": "NL", "count": "ten"},
		{"region": "NL", "count": 500.0},
		{"region": "netherlands", "count": 10.0},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "NL", out[0]["region"])
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], "required field")
	assert.Contains(t, errs[1], "not of type")
	assert.Contains(t, errs[2], "above maximum")
	assert.Contains(t, errs[3], "pattern")
}

func TestNoComplianceRulesPassThrough(t *testing.T) {
	p := compliancePipeline(t, nil)

	out, errs := p.complianceStage(context.Background(), []core.Document{{"k": "v"}})

	assert.Len(t, out, 1)
	assert.Empty(t, errs)
	assert.NotContains(t, out[0], "_compliance_checked")
}
