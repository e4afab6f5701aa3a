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
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/poiesic/intake/core"
)

// duplicateStage drops records whose duplicate key was already seen, either
// in this process or in the persisted seen store. New keys are recorded in
// both places so suppression survives restarts.
func (p *Standard) duplicateStage(ctx context.Context, records []core.Document) ([]core.Document, []string) {
	out := records[:0]
	var errs []string

	for _, record := range records {
		key := DuplicateKey(record, p.cfg.DuplicateKeyFields)
		if key == "" {
			out = append(out, record)
			continue
		}

		if p.keySeen(key) {
			errs = append(errs, fmt.Sprintf("duplicate record, key %s", key))
			continue
		}
		if p.seenStore != nil {
			seen, err := p.seenStore.Seen(ctx, key)
			if err != nil {
				errs = append(errs, fmt.Sprintf("seen store check failed: %v", err))
				// On store failure keep the record rather than risk losing data.
				out = append(out, record)
				continue
			}
			if seen {
				p.rememberKey(key)
				errs = append(errs, fmt.Sprintf("duplicate record, key %s", key))
				continue
			}
			if err := p.seenStore.Mark(ctx, key); err != nil {
				errs = append(errs, fmt.Sprintf("seen store mark failed: %v", err))
			}
		}

		p.rememberKey(key)
		record["_duplicate_key"] = key
		out = append(out, record)
	}

	return out, errs
}

// DuplicateKey computes a content key for the record: the listed fields (or
// all non-marker fields when none are configured) are sorted by name,
// stringified with strings case-folded and whitespace collapsed, joined and
// hashed. Records with none of the key fields present produce no key.
func DuplicateKey(record core.Document, keyFields []string) string {
	fields := slices.Clone(keyFields)
	if len(fields) == 0 {
		for field := range record {
			if !strings.HasPrefix(field, "_") {
				fields = append(fields, field)
			}
		}
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		value, ok := record[field]
		if !ok {
			continue
		}
		parts = append(parts, field+":"+normalizeKeyValue(value))
	}
	if len(parts) == 0 {
		return ""
	}
	return core.Fingerprint(strings.Join(parts, "|"))
}

func normalizeKeyValue(value any) string {
	if text, ok := value.(string); ok {
		return strings.ToLower(collapseWhitespace(strings.TrimSpace(text)))
	}
	return asString(value)
}

func (p *Standard) keySeen(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seenKeys[key]
	return ok
}

// rememberKey adds the key to the in-process set. The set is advisory and
// capped; the persisted seen store stays authoritative, so shedding entries
// under pressure only costs an extra store read later.
func (p *Standard) rememberKey(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.seenKeys) >= maxSeenKeySetSize {
		cutoff := time.Now().Add(-time.Hour)
		for k, at := range p.seenKeys {
			if at.Before(cutoff) {
				delete(p.seenKeys, k)
			}
		}
		for len(p.seenKeys) >= maxSeenKeySetSize {
			var oldestKey string
			var oldestAt time.Time
			first := true
			for k, at := range p.seenKeys {
				if first || at.Before(oldestAt) {
					oldestKey = k
					oldestAt = at
					first = false
				}
			}
			delete(p.seenKeys, oldestKey)
		}
	}
	p.seenKeys[key] = time.Now()
}
