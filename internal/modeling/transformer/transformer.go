// Package transformer holds the pure per-type transforms from raw event
// payloads to canonical models. No IO, no clock, no IDs; the processor owns
// persistence and identity.
package transformer

import (
	"fmt"
	"time"
)

func str(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return fmt.Sprintf("%.0f", t)
		case int:
			return fmt.Sprintf("%d", t)
		case int64:
			return fmt.Sprintf("%d", t)
		}
	}
	return ""
}

func num(payload map[string]any, keys ...string) float64 {
	for _, key := range keys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		case int64:
			return float64(t)
		case string:
			var f float64
			if _, err := fmt.Sscanf(t, "%g", &f); err == nil {
				return f
			}
		}
	}
	return 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// date resolves the first parseable timestamp among keys, else the fallback.
func date(payload map[string]any, fallback time.Time, keys ...string) time.Time {
	for _, key := range keys {
		raw, ok := payload[key].(string)
		if !ok || raw == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC()
			}
		}
	}
	return fallback.UTC()
}
