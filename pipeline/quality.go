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
	"math"
	"regexp"
	"strings"

	"github.com/poiesic/intake/core"
)

// Quality dimension weights. They sum to 1 so the blended score stays
// within [0, 1].
const (
	weightCompleteness = 0.30
	weightValidity     = 0.35
	weightConsistency  = 0.20
	weightAccuracy     = 0.15
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	urlPattern   = regexp.MustCompile(`^https?://\S+$`)
)

// qualityStage scores each record across four dimensions and drops records
// scoring below the configured minimum. The blended score is attached to
// surviving records under "_quality_score". A dimension with nothing to
// measure contributes its full weight.
func (p *Standard) qualityStage(_ context.Context, records []core.Document) ([]core.Document, []string) {
	out := records[:0]
	var errs []string

	for _, record := range records {
		score := QualityScore(record)
		if score < p.cfg.MinQualityScore {
			errs = append(errs, fmt.Sprintf("record scored %.3f, below minimum %.3f", score, p.cfg.MinQualityScore))
			continue
		}
		record["_quality_score"] = score
		out = append(out, record)
	}

	return out, errs
}

// QualityScore blends completeness, validity, consistency and accuracy into
// a single score in [0, 1].
func QualityScore(record core.Document) float64 {
	score := weightCompleteness*completenessScore(record) +
		weightValidity*validityScore(record) +
		weightConsistency*consistencyScore(record) +
		weightAccuracy*accuracyScore(record)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// completenessScore is the fraction of fields holding a non-empty value.
// Internal marker fields do not count.
func completenessScore(record core.Document) float64 {
	var total, filled int
	for field, value := range record {
		if strings.HasPrefix(field, "_") {
			continue
		}
		total++
		if !isEmptyValue(value) {
			filled++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(filled) / float64(total)
}

// validityScore checks fields whose names imply a format: email addresses,
// URLs, dates and numeric quantities. Records without such fields score full
// marks.
func validityScore(record core.Document) float64 {
	var checked, valid int
	for field, value := range record {
		if strings.HasPrefix(field, "_") || isEmptyValue(value) {
			continue
		}
		name := strings.ToLower(field)
		switch {
		case strings.Contains(name, "email"):
			checked++
			if emailPattern.MatchString(asString(value)) {
				valid++
			}
		case strings.Contains(name, "url") || strings.HasSuffix(name, "link"):
			checked++
			if urlPattern.MatchString(asString(value)) {
				valid++
			}
		case strings.Contains(name, "date") || strings.HasSuffix(name, "_at"):
			checked++
			if fieldIsTimestamp(value) {
				valid++
			}
		case numericFieldName(name):
			checked++
			if _, ok := asFloat(value); ok {
				valid++
			}
		}
	}
	if checked == 0 {
		return 1
	}
	return float64(valid) / float64(checked)
}

func fieldIsTimestamp(value any) bool {
	if _, ok := asFloat(value); ok {
		return true
	}
	_, err := parseFlexibleTime(asString(value))
	return err == nil
}

func numericFieldName(name string) bool {
	for _, hint := range []string{"amount", "price", "count", "quantity", "total", "age", "score"} {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

// consistencyScore runs cross-field sanity checks: date ordering between
// conventional start/end pairs and plausible age values.
func consistencyScore(record core.Document) float64 {
	var checked, consistent int

	pairs := [][2]string{
		{"start_date", "end_date"},
		{"created_at", "updated_at"},
	}
	for _, pair := range pairs {
		startRaw, sok := record[pair[0]]
		endRaw, eok := record[pair[1]]
		if !sok || !eok {
			continue
		}
		start, serr := parseFlexibleTime(asString(startRaw))
		end, eerr := parseFlexibleTime(asString(endRaw))
		if serr != nil || eerr != nil {
			continue
		}
		checked++
		if !end.Before(start) {
			consistent++
		}
	}

	if value, ok := record["age"]; ok {
		if age, numeric := asFloat(value); numeric {
			checked++
			if age >= 0 && age <= 150 {
				consistent++
			}
		}
	}

	// quantity * price should match total when all three are present.
	quantity, qok := asFloat(record["quantity"])
	price, pok := asFloat(record["price"])
	total, tok := asFloat(record["total"])
	if qok && pok && tok {
		checked++
		expected := quantity * price
		epsilon := 0.01 * math.Max(1, math.Abs(expected))
		if math.Abs(expected-total) <= epsilon {
			consistent++
		}
	}

	if checked == 0 {
		return 1
	}
	return float64(consistent) / float64(checked)
}

// accuracyScore penalizes obvious placeholder values and out-of-range
// percentage fields.
func accuracyScore(record core.Document) float64 {
	var checked, clean int
	for field, value := range record {
		if strings.HasPrefix(field, "_") {
			continue
		}
		name := strings.ToLower(field)
		if strings.Contains(name, "percent") || strings.HasSuffix(name, "_pct") {
			if pct, ok := asFloat(value); ok {
				checked++
				if pct >= 0 && pct <= 100 {
					clean++
				}
				continue
			}
		}
		text, ok := value.(string)
		if !ok {
			continue
		}
		checked++
		if !placeholderValue(text) {
			clean++
		}
	}
	if checked == 0 {
		return 1
	}
	return float64(clean) / float64(checked)
}

func placeholderValue(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "n/a", "na", "none", "null", "unknown", "test", "tbd", "xxx":
		return true
	}
	return false
}
