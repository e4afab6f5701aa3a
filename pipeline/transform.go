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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/intake/core"
)

// transformStage applies the configured transformation rules to each record
// and stamps the processing timestamp. Transformation never drops records.
func (p *Standard) transformStage(_ context.Context, records []core.Document) ([]core.Document, []string) {
	var errs []string
	for _, record := range records {
		for _, rule := range p.cfg.Transformations {
			if err := p.applyTransformation(record, rule); err != nil {
				errs = append(errs, fmt.Sprintf("transformation %q: %v", rule.Name, err))
			}
		}
		record["processed_at"] = time.Now().UTC().UnixMilli()
	}
	return records, errs
}

func (p *Standard) applyTransformation(record core.Document, rule TransformationRule) error {
	if rule.Conditional {
		value, ok := record[rule.ConditionField]
		if !ok || asString(value) != asString(rule.ConditionValue) {
			return nil
		}
	}

	switch rule.Type {
	case TransformFieldMapping:
		applyFieldMapping(record, rule)
		return nil
	case TransformTypeConversion:
		return applyTypeConversion(record, rule)
	case TransformValueNormalization:
		applyNormalization(record, rule)
		return nil
	case TransformMasking:
		return p.applyMasking(record, rule)
	case TransformAggregation:
		return applyAggregation(record, rule)
	case TransformDerivedField:
		return applyDerivedField(record, rule)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownTransformType, rule.Type)
	}
}

func applyFieldMapping(record core.Document, rule TransformationRule) {
	for from, to := range rule.FieldMappings {
		if from == to {
			continue
		}
		if value, ok := record[from]; ok {
			record[to] = value
			delete(record, from)
		}
	}
}

func applyTypeConversion(record core.Document, rule TransformationRule) error {
	conversions, _ := rule.Params["conversions"].(map[string]any)
	for field, target := range conversions {
		value, ok := record[field]
		if !ok || value == nil {
			continue
		}
		switch asString(target) {
		case "string":
			record[field] = asString(value)
		case "float", "number":
			number, ok := asFloat(value)
			if !ok {
				return fmt.Errorf("field %q cannot convert to float", field)
			}
			record[field] = number
		case "int":
			number, ok := asInt(value)
			if !ok {
				return fmt.Errorf("field %q cannot convert to int", field)
			}
			record[field] = number
		case "bool", "boolean":
			record[field] = asBool(value)
		default:
			return fmt.Errorf("unknown conversion target %q for field %q", asString(target), field)
		}
	}
	return nil
}

// applyNormalization rewrites fields to a canonical form. String modes:
// lowercase, uppercase, trim. Numeric modes: "scale" (multiply by "factor")
// and "clamp" (limit to ["min","max"]).
func applyNormalization(record core.Document, rule TransformationRule) {
	mode := docString(rule.Params, "mode")
	fields := docStringSlice(rule.Params, "fields")
	for _, field := range fields {
		switch mode {
		case "scale":
			if value, ok := asFloat(record[field]); ok {
				factor, haveFactor := asFloat(rule.Params["factor"])
				if haveFactor {
					record[field] = value * factor
				}
			}
		case "clamp":
			if value, ok := asFloat(record[field]); ok {
				if lo, ok := asFloat(rule.Params["min"]); ok && value < lo {
					value = lo
				}
				if hi, ok := asFloat(rule.Params["max"]); ok && value > hi {
					value = hi
				}
				record[field] = value
			}
		case "uppercase":
			if raw, ok := record[field].(string); ok {
				record[field] = strings.ToUpper(raw)
			}
		case "trim":
			if raw, ok := record[field].(string); ok {
				record[field] = strings.TrimSpace(raw)
			}
		default:
			if raw, ok := record[field].(string); ok {
				record[field] = strings.ToLower(raw)
			}
		}
	}
}

// applyMasking protects sensitive fields. Strategies: "encrypt" (AES-GCM,
// base64 output), "last4", "email" (keeps first character and domain),
// "remove", and the default full mask.
func (p *Standard) applyMasking(record core.Document, rule TransformationRule) error {
	strategy := docString(rule.Params, "strategy")
	fields := docStringSlice(rule.Params, "fields")

	for _, field := range fields {
		value, ok := record[field]
		if !ok || isEmptyValue(value) {
			continue
		}
		text := asString(value)

		switch strategy {
		case "encrypt":
			masked, err := p.encryptValue(text)
			if err != nil {
				return fmt.Errorf("field %q: %w", field, err)
			}
			record[field] = masked
		case "last4":
			if len(text) <= 4 {
				record[field] = strings.Repeat("*", len(text))
			} else {
				record[field] = strings.Repeat("*", len(text)-4) + text[len(text)-4:]
			}
		case "email":
			record[field] = maskEmail(text)
		case "remove":
			delete(record, field)
		default:
			record[field] = strings.Repeat("*", len(text))
		}
	}
	return nil
}

func (p *Standard) encryptValue(plaintext string) (string, error) {
	if len(p.encryptionKey) == 0 {
		return "", fmt.Errorf("%w: no encryption key configured", ErrNonRecoverable)
	}
	block, err := aes.NewCipher(p.encryptionKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return strings.Repeat("*", len(email))
	}
	local := email[:at]
	return local[:1] + strings.Repeat("*", len(local)-1) + email[at:]
}

// applyAggregation combines several source fields into one target field.
// Operations: sum, avg, concat.
func applyAggregation(record core.Document, rule TransformationRule) error {
	op := docString(rule.Params, "operation")
	fields := docStringSlice(rule.Params, "fields")
	target := docString(rule.Params, "target_field")
	if target == "" {
		return fmt.Errorf("aggregation has no target_field")
	}

	switch op {
	case "sum", "avg":
		var total float64
		var count int
		for _, field := range fields {
			if number, ok := asFloat(record[field]); ok {
				total += number
				count++
			}
		}
		if op == "avg" {
			if count == 0 {
				return nil
			}
			total /= float64(count)
		}
		record[target] = total
	case "concat":
		sep := docString(rule.Params, "separator")
		var parts []string
		for _, field := range fields {
			if value, ok := record[field]; ok && !isEmptyValue(value) {
				parts = append(parts, asString(value))
			}
		}
		record[target] = strings.Join(parts, sep)
	default:
		return fmt.Errorf("unknown aggregation operation %q", op)
	}
	return nil
}

// applyDerivedField computes a new field. Kinds: "timestamp" (now, unix
// millis), "fingerprint" (hash of the listed source fields), "arithmetic"
// (binary op over two fields) and "conditional" (then/else on a field match).
func applyDerivedField(record core.Document, rule TransformationRule) error {
	target := docString(rule.Params, "target_field")
	if target == "" {
		return fmt.Errorf("derived field has no target_field")
	}

	switch kind := docString(rule.Params, "kind"); kind {
	case "timestamp":
		record[target] = time.Now().UTC().UnixMilli()
	case "fingerprint":
		fields := docStringSlice(rule.Params, "fields")
		var sb strings.Builder
		for i, field := range fields {
			if i > 0 {
				sb.WriteByte('|')
			}
			sb.WriteString(asString(record[field]))
		}
		record[target] = core.Fingerprint(sb.String())
	case "arithmetic":
		left, lok := asFloat(record[docString(rule.Params, "left")])
		right, rok := asFloat(record[docString(rule.Params, "right")])
		if !lok || !rok {
			return fmt.Errorf("arithmetic operands are not numeric")
		}
		switch docString(rule.Params, "operator") {
		case "add":
			record[target] = left + right
		case "sub":
			record[target] = left - right
		case "mul":
			record[target] = left * right
		case "div":
			if right == 0 {
				return fmt.Errorf("division by zero")
			}
			record[target] = left / right
		default:
			return fmt.Errorf("unknown arithmetic operator")
		}
	case "conditional":
		field := docString(rule.Params, "field")
		if asString(record[field]) == docString(rule.Params, "equals") {
			record[target] = rule.Params["then"]
		} else {
			record[target] = rule.Params["else"]
		}
	default:
		return fmt.Errorf("unknown derived field kind %q", kind)
	}
	return nil
}
