// Package adapter maps raw provider payloads to canonical intake records.
// Adapters are pure: no IO, no clock, one payload in, one EventInput out.
package adapter

import (
	"errors"
	"fmt"

	"github.com/growhalo/halo/internal/ingestion/domain"
)

// ErrValidation marks payloads missing required identifying fields.
// Callers drop such events and count them as rejected.
var ErrValidation = errors.New("validation_failed")

type SourceAdapter interface {
	ValidateAndExtract(payload map[string]any) (domain.EventInput, error)
}

var registry = map[domain.Source]SourceAdapter{
	domain.SourceShopify: shopifyAdapter{},
	domain.SourceMeta:    metaAdapter{},
	domain.SourceGoogle:  googleAdapter{},
}

// ForSource returns the adapter registered for the source.
func ForSource(source domain.Source) (SourceAdapter, error) {
	a, ok := registry[source]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for source %q", domain.ErrInvalidSource, source)
	}
	return a, nil
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func stringField(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; ids are integral in practice.
		return fmt.Sprintf("%.0f", t)
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
