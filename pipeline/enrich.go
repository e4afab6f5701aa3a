// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/intake/core"
)

// enrichStage augments records from external reference data. Enrichment
// failures never drop a record; the target field is simply left unset.
// Records already carrying the enriched marker are skipped.
func (p *Standard) enrichStage(ctx context.Context, records []core.Document) ([]core.Document, []string) {
	var errs []string

	for _, record := range records {
		if asBool(record["_enriched"]) {
			continue
		}
		for _, rule := range p.cfg.EnrichmentRules {
			value, err := p.enrichValue(ctx, record, rule)
			if err != nil {
				errs = append(errs, fmt.Sprintf("rule %q: %v", rule.Name, err))
				continue
			}
			if value != nil {
				record[rule.TargetField] = value
			}
		}
		record["_enriched"] = true
	}

	return records, errs
}

func (p *Standard) enrichValue(ctx context.Context, record core.Document, rule EnrichmentRule) (any, error) {
	cacheKey := enrichmentCacheKey(record, rule)
	if rule.CacheResults {
		if value, ok := p.cache.Get(cacheKey); ok {
			return value, nil
		}
	}

	var value any
	var err error
	switch rule.SourceType {
	case "lookup_table":
		value, err = p.enrichFromLookup(ctx, record, rule)
	case "api_call":
		value, err = p.enrichFromAPI(ctx, record, rule)
	case "calculation":
		value, err = enrichFromCalculation(record, rule)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnrichmentSource, rule.SourceType)
	}
	if err != nil {
		return nil, err
	}

	if rule.CacheResults && value != nil {
		p.cache.Put(cacheKey, value, rule.CacheTTL)
	}
	return value, nil
}

func enrichmentCacheKey(record core.Document, rule EnrichmentRule) string {
	var sb strings.Builder
	sb.WriteString(rule.Name)
	for _, field := range rule.KeyFields {
		sb.WriteByte(':')
		sb.WriteString(asString(record[field]))
	}
	return sb.String()
}

func (p *Standard) enrichFromLookup(ctx context.Context, record core.Document, rule EnrichmentRule) (any, error) {
	if p.lookup == nil {
		return nil, fmt.Errorf("no lookup store configured")
	}
	table := docString(rule.Config, "table")
	if len(rule.KeyFields) == 0 {
		return nil, fmt.Errorf("no key fields configured")
	}
	key := asString(record[rule.KeyFields[0]])
	if key == "" {
		return nil, nil
	}
	value, err := p.lookup.Get(ctx, table, key)
	if err != nil {
		return nil, fmt.Errorf("lookup in %q: %w", table, err)
	}
	return value, nil
}

// enrichFromAPI performs an HTTP GET against the configured endpoint. Key
// field values replace {field} placeholders in the URL; the decoded JSON
// body becomes the enrichment value. An optional "response_field" picks a
// single top-level field out of the response.
func (p *Standard) enrichFromAPI(ctx context.Context, record core.Document, rule EnrichmentRule) (any, error) {
	url := docString(rule.Config, "url")
	if url == "" {
		return nil, fmt.Errorf("no url configured")
	}
	for _, field := range rule.KeyFields {
		url = strings.ReplaceAll(url, "{"+field+"}", asString(record[field]))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token := docString(rule.Config, "auth_token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if headers, ok := rule.Config["headers"].(map[string]any); ok {
		for name, value := range headers {
			req.Header.Set(name, asString(value))
		}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("enrichment request returned %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding enrichment response: %w", err)
	}
	if field := docString(rule.Config, "response_field"); field != "" {
		return body[field], nil
	}
	return body, nil
}

// enrichFromCalculation derives a value from existing fields. Operations:
// "mean" and "stddev" over the key fields, "ratio" of the first two key
// fields, and "date_delta_days" between a date field and now.
func enrichFromCalculation(record core.Document, rule EnrichmentRule) (any, error) {
	switch op := docString(rule.Config, "operation"); op {
	case "mean", "stddev":
		var values []float64
		for _, field := range rule.KeyFields {
			if number, ok := asFloat(record[field]); ok {
				values = append(values, number)
			}
		}
		if len(values) == 0 {
			return nil, nil
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))
		if op == "mean" {
			return mean, nil
		}
		var variance float64
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		return math.Sqrt(variance / float64(len(values))), nil
	case "ratio":
		if len(rule.KeyFields) < 2 {
			return nil, fmt.Errorf("ratio needs two key fields")
		}
		num, nok := asFloat(record[rule.KeyFields[0]])
		den, dok := asFloat(record[rule.KeyFields[1]])
		if !nok || !dok || den == 0 {
			return nil, nil
		}
		return num / den, nil
	case "date_delta_days":
		if len(rule.KeyFields) == 0 {
			return nil, fmt.Errorf("date_delta_days needs a key field")
		}
		raw := asString(record[rule.KeyFields[0]])
		if raw == "" {
			return nil, nil
		}
		when, err := parseFlexibleTime(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %w", raw, err)
		}
		return time.Since(when).Hours() / 24, nil
	default:
		return nil, fmt.Errorf("unknown calculation %q", op)
	}
}

func parseFlexibleTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if when, err := time.Parse(layout, raw); err == nil {
			return when, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}
