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

	"github.com/poiesic/intake/core"
)

// validateStage applies the configured validation rules to each record.
// Records failing a fail-on-error rule are dropped; other failures are
// reported but the record passes through. Records already carrying the
// validated marker are not re-checked.
func (p *Standard) validateStage(ctx context.Context, records []core.Document) ([]core.Document, []string) {
	out := records[:0]
	var errs []string

	for _, record := range records {
		if asBool(record["_validated"]) {
			out = append(out, record)
			continue
		}

		// Without configured rules, fall back to rejecting records that
		// carry no usable content at all.
		if len(p.cfg.ValidationRules) == 0 {
			if emptyRecord(record) {
				errs = append(errs, "record is empty")
				continue
			}
			record["_validated"] = true
			out = append(out, record)
			continue
		}

		keep := true
		for _, rule := range p.cfg.ValidationRules {
			ok, detail := p.checkRule(ctx, record, rule)
			if ok {
				continue
			}
			msg := rule.ErrorMessage
			if msg == "" {
				msg = detail
			}
			errs = append(errs, fmt.Sprintf("rule %q: %s", rule.Name, msg))
			if rule.FailOnError {
				keep = false
				break
			}
		}
		if keep {
			record["_validated"] = true
			out = append(out, record)
		}
	}

	return out, errs
}

func (p *Standard) checkRule(ctx context.Context, record core.Document, rule ValidationRule) (bool, string) {
	switch rule.Type {
	case RuleRequiredFields:
		return checkRequiredFields(record, rule)
	case RuleTypeCheck:
		return checkFieldTypes(record, rule)
	case RuleRangeCheck:
		return checkRange(record, rule)
	case RuleFormat:
		return checkFormat(record, rule)
	case RuleReferenceIntegrity:
		return p.checkReference(ctx, record, rule)
	case RuleBusiness:
		return checkBusiness(record, rule)
	default:
		return false, fmt.Sprintf("unknown rule type %d", rule.Type)
	}
}

func checkRequiredFields(record core.Document, rule ValidationRule) (bool, string) {
	fields := docStringSlice(rule.Params, "fields")
	var missing []string
	for _, field := range fields {
		value, ok := record[field]
		if !ok || isEmptyValue(value) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return false, fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return true, ""
}

// checkFieldTypes verifies the declared type of each listed field. Expected
// types are "string", "number", "bool", "object" and "array"; absent fields
// pass, required-ness is a separate rule.
func checkFieldTypes(record core.Document, rule ValidationRule) (bool, string) {
	types, _ := rule.Params["field_types"].(map[string]any)
	for field, want := range types {
		value, ok := record[field]
		if !ok || value == nil {
			continue
		}
		if !matchesType(value, asString(want)) {
			return false, fmt.Sprintf("field %q is not of type %s", field, asString(want))
		}
	}
	return true, ""
}

func matchesType(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "float", "int":
		_, ok := asFloat(value)
		return ok
	case "bool", "boolean":
		_, ok := value.(bool)
		return ok
	case "object", "map":
		_, ok := value.(map[string]any)
		return ok
	case "array", "list":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

func checkRange(record core.Document, rule ValidationRule) (bool, string) {
	field := docString(rule.Params, "field")
	value, ok := record[field]
	if !ok {
		return true, ""
	}
	number, ok := asFloat(value)
	if !ok {
		return false, fmt.Sprintf("field %q is not numeric", field)
	}
	if min, ok := docFloat(rule.Params, "min"); ok && number < min {
		return false, fmt.Sprintf("field %q below minimum %v", field, min)
	}
	if max, ok := docFloat(rule.Params, "max"); ok && number > max {
		return false, fmt.Sprintf("field %q above maximum %v", field, max)
	}
	return true, ""
}

func checkFormat(record core.Document, rule ValidationRule) (bool, string) {
	field := docString(rule.Params, "field")
	pattern := docString(rule.Params, "pattern")
	value, ok := record[field]
	if !ok {
		return true, ""
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid pattern %q: %v", pattern, err)
	}
	if !re.MatchString(asString(value)) {
		return false, fmt.Sprintf("field %q does not match format %q", field, pattern)
	}
	return true, ""
}

// checkReference looks the field value up in the external reference store.
// Without a configured store the rule fails closed.
func (p *Standard) checkReference(ctx context.Context, record core.Document, rule ValidationRule) (bool, string) {
	field := docString(rule.Params, "field")
	table := docString(rule.Params, "reference_table")
	value, ok := record[field]
	if !ok || isEmptyValue(value) {
		return true, ""
	}
	if p.lookup == nil {
		return false, "no reference store configured"
	}
	exists, err := p.lookup.Exists(ctx, table, asString(value))
	if err != nil {
		return false, fmt.Sprintf("reference check against %q failed: %v", table, err)
	}
	if !exists {
		return false, fmt.Sprintf("field %q value %q not found in %q", field, asString(value), table)
	}
	return true, ""
}

// checkBusiness evaluates one business rule. The "kind" parameter selects
// the variant: "mutual_exclusion" (at most one of "fields" set), "dependency"
// ("field" present means every field in "requires" must be too), or the
// default conditional comparison with operators eq, ne, gt, gte, lt, lte and
// contains.
func checkBusiness(record core.Document, rule ValidationRule) (bool, string) {
	switch docString(rule.Params, "kind") {
	case "mutual_exclusion":
		return checkMutualExclusion(record, rule)
	case "dependency":
		return checkDependency(record, rule)
	}

	field := docString(rule.Params, "field")
	op := docString(rule.Params, "operator")
	expected := rule.Params["value"]

	value, ok := record[field]
	if !ok {
		return true, ""
	}

	switch op {
	case "eq":
		return asString(value) == asString(expected), fmt.Sprintf("field %q != %v", field, expected)
	case "ne":
		return asString(value) != asString(expected), fmt.Sprintf("field %q == %v", field, expected)
	case "contains":
		return strings.Contains(asString(value), asString(expected)), fmt.Sprintf("field %q does not contain %v", field, expected)
	case "gt", "gte", "lt", "lte":
		left, lok := asFloat(value)
		right, rok := asFloat(expected)
		if !lok || !rok {
			return false, fmt.Sprintf("field %q is not numeric", field)
		}
		var pass bool
		switch op {
		case "gt":
			pass = left > right
		case "gte":
			pass = left >= right
		case "lt":
			pass = left < right
		case "lte":
			pass = left <= right
		}
		return pass, fmt.Sprintf("field %q fails %s %v", field, op, expected)
	default:
		return false, fmt.Sprintf("unknown operator %q", op)
	}
}

func checkMutualExclusion(record core.Document, rule ValidationRule) (bool, string) {
	var set []string
	for _, field := range docStringSlice(rule.Params, "fields") {
		if value, ok := record[field]; ok && !isEmptyValue(value) {
			set = append(set, field)
		}
	}
	if len(set) > 1 {
		return false, fmt.Sprintf("fields %s are mutually exclusive", strings.Join(set, ", "))
	}
	return true, ""
}

func checkDependency(record core.Document, rule ValidationRule) (bool, string) {
	field := docString(rule.Params, "field")
	if value, ok := record[field]; !ok || isEmptyValue(value) {
		return true, ""
	}
	var missing []string
	for _, required := range docStringSlice(rule.Params, "requires") {
		if value, ok := record[required]; !ok || isEmptyValue(value) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return false, fmt.Sprintf("field %q requires %s", field, strings.Join(missing, ", "))
	}
	return true, ""
}
