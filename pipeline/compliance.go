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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/poiesic/intake/core"
)

var (
	rawEmailPattern = regexp.MustCompile(`[^@\s*]+@[^@\s]+\.[^@\s]+`)
	longDigitRun    = regexp.MustCompile(`\d{9,}`)
)

// complianceStage drops records violating the configured compliance rules.
// Supported rule keys in the compliance document:
//
//   - "pii_fields": fields that must not carry raw identifiers
//   - "detect_pii": when true, fields with identifier-like names are checked
//   - "gdpr" / "gdpr_compliance": when true, records need a truthy
//     consent_given field
//   - "ccpa" / "ccpa_compliance": when true, records with a truthy opt_out
//     field are excluded
//   - "max_age_days": retention limit on the record's event timestamp
//   - "required_fields": fields that must be present and non-empty
//   - "field_types": map of field name to expected type name
//   - "field_ranges": map of field name to {"min","max"} bounds
//   - "field_patterns": map of field name to a regular expression
func (p *Standard) complianceStage(_ context.Context, records []core.Document) ([]core.Document, []string) {
	rules := p.cfg.ComplianceRules
	if len(rules) == 0 {
		return records, nil
	}

	out := records[:0]
	var errs []string

	for _, record := range records {
		if violation := complianceViolation(record, rules); violation != "" {
			errs = append(errs, violation)
			continue
		}
		record["_compliance_checked"] = true
		out = append(out, record)
	}

	return out, errs
}

func complianceViolation(record core.Document, rules core.Document) string {
	for _, field := range docStringSlice(rules, "pii_fields") {
		value, ok := record[field]
		if !ok || isEmptyValue(value) {
			continue
		}
		if looksLikeRawPII(asString(value)) {
			return fmt.Sprintf("field %q carries unmasked personal data", field)
		}
	}

	if docBool(rules, "detect_pii", false) {
		for field, value := range record {
			if isEmptyValue(value) || !piiFieldName(field) {
				continue
			}
			if looksLikeRawPII(asString(value)) {
				return fmt.Sprintf("field %q carries unmasked personal data", field)
			}
		}
	}

	if docBool(rules, "gdpr", false) || docBool(rules, "gdpr_compliance", false) {
		if !asBool(record["consent_given"]) {
			return "record lacks consent under gdpr rules"
		}
	}

	if docBool(rules, "ccpa", false) || docBool(rules, "ccpa_compliance", false) {
		if asBool(record["opt_out"]) {
			return "record opted out under ccpa rules"
		}
	}

	if maxAge, ok := docFloat(rules, "max_age_days"); ok && maxAge > 0 {
		if when, found := recordEventTime(record); found {
			if time.Since(when) > time.Duration(maxAge*24)*time.Hour {
				return fmt.Sprintf("record exceeds retention limit of %v days", maxAge)
			}
		}
	}

	for _, field := range docStringSlice(rules, "required_fields") {
		if value, ok := record[field]; !ok || isEmptyValue(value) {
			return fmt.Sprintf("required field %q is missing", field)
		}
	}

	if types, ok := rules["field_types"].(map[string]any); ok {
		for field, want := range types {
			value, present := record[field]
			if !present {
				continue
			}
			if !matchesType(value, asString(want)) {
				return fmt.Sprintf("field %q is not of type %s", field, asString(want))
			}
		}
	}

	if ranges, ok := rules["field_ranges"].(map[string]any); ok {
		for field, boundsRaw := range ranges {
			bounds, ok := boundsRaw.(map[string]any)
			if !ok {
				continue
			}
			value, numeric := asFloat(record[field])
			if !numeric {
				continue
			}
			if lo, ok := asFloat(bounds["min"]); ok && value < lo {
				return fmt.Sprintf("field %q below minimum %v", field, lo)
			}
			if hi, ok := asFloat(bounds["max"]); ok && value > hi {
				return fmt.Sprintf("field %q above maximum %v", field, hi)
			}
		}
	}

	if patterns, ok := rules["field_patterns"].(map[string]any); ok {
		for field, patternRaw := range patterns {
			value, present := record[field]
			if !present || isEmptyValue(value) {
				continue
			}
			pattern, err := regexp.Compile(asString(patternRaw))
			if err != nil {
				continue
			}
			if !pattern.MatchString(asString(value)) {
				return fmt.Sprintf("field %q does not match required pattern", field)
			}
		}
	}

	return ""
}

// looksLikeRawPII flags values still containing an email address or a long
// digit run. Masked and encrypted values fail both patterns.
func looksLikeRawPII(text string) bool {
	return rawEmailPattern.MatchString(text) || longDigitRun.MatchString(text)
}

func piiFieldName(field string) bool {
	name := strings.ToLower(field)
	for _, hint := range []string{"email", "phone", "ssn", "passport", "credit_card", "tax_id"} {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

func recordEventTime(record core.Document) (time.Time, bool) {
	for _, field := range []string{"event_time", "timestamp", "published_date", "created_at"} {
		raw, ok := record[field]
		if !ok || isEmptyValue(raw) {
			continue
		}
		if when, err := parseFlexibleTime(asString(raw)); err == nil {
			return when, true
		}
	}
	return time.Time{}, false
}
