package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/intake/core"
)

func TestParseSourceType(t *testing.T) {
	tests := []struct {
		name string
		want core.SourceType
		ok   bool
	}{
		{"csv_file", core.SourceTypeCSVFile, true},
		{"CSV", core.SourceTypeCSVFile, true},
		{"json", core.SourceTypeJSONFile, true},
		{"rest_api", core.SourceTypeRESTAPI, true},
		{"web_scrape", core.SourceTypeWebScrape, true},
		{"carrier_pigeon", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseSourceType(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.name)
		}
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `{
		"validation_rules": {
			"rules": [
				{"rule_name": "r1", "rule_type": "required_fields",
				 "parameters": {"fields": ["id"]}, "fail_on_error": true}
			]
		},
		"transformation_rules": {
			"duplicate_key_fields": ["id"]
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var cfg core.SourceConfig
	require.NoError(t, loadRules(path, &cfg))

	assert.Contains(t, cfg.ValidationRules, "rules")
	assert.Contains(t, cfg.TransformationRules, "duplicate_key_fields")
}

func TestLoadRulesMissingFile(t *testing.T) {
	var cfg core.SourceConfig
	assert.Error(t, loadRules("/nonexistent/rules.json", &cfg))
}
