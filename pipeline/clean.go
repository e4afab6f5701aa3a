package pipeline

import (
	"context"
	"math"
	"strings"

	"github.com/poiesic/intake/core"
)

// cleanStage normalizes record content in place: string values are trimmed,
// stripped of control characters and null bytes, line endings are normalized
// and repeated spaces collapsed; NaN and infinite numbers are nulled out along
// with nil and empty values. Records left empty are logged but kept, so later
// stages can score or reject them explicitly.
func (p *Standard) cleanStage(_ context.Context, records []core.Document) ([]core.Document, []string) {
	for _, record := range records {
		before := len(record)
		for field, value := range record {
			switch v := value.(type) {
			case string:
				cleaned := cleanString(v)
				if cleaned == "" {
					delete(record, field)
				} else {
					record[field] = cleaned
				}
			case float64:
				if math.IsNaN(v) || math.IsInf(v, 0) {
					delete(record, field)
				}
			case nil:
				delete(record, field)
			}
		}
		if len(record) == 0 {
			p.logger.Warn("record empty after cleaning")
		} else if removed := before - len(record); removed > len(record) {
			p.logger.Debug("record mostly empty after cleaning",
				"removed_fields", removed, "remaining_fields", len(record))
		}
	}

	return records, nil
}

// cleanString trims the value, drops control characters other than tab,
// newline and carriage return, normalizes CRLF to LF and collapses runs of
// spaces.
func cleanString(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == 0x00 || r == 0x7f || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			continue
		}
		if r == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
