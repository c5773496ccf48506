// Package poller defines the incremental sync boundary to upstream platforms.
package poller

import (
	"context"

	connection "github.com/growhalo/halo/internal/connection/domain"
	"github.com/growhalo/halo/internal/ingestion/domain"
)

// PollResult is one page of events pulled from an upstream platform.
// NextCursorValue must be non-empty even when Events is; an empty cursor
// would rewind the sync position.
type PollResult struct {
	Events          []domain.EventInput
	NextCursorValue string
	HasMore         bool
}

// SourcePoller pulls events for one connection past the given cursor.
type SourcePoller interface {
	Poll(ctx context.Context, conn *connection.Connection, cursor *domain.SyncCursor) (PollResult, error)
}

// Registry resolves the poller for a source. The orchestrator holds one;
// tests swap entries to inject fakes.
type Registry struct {
	pollers map[domain.Source]SourcePoller
}

func NewRegistry() *Registry {
	return &Registry{pollers: map[domain.Source]SourcePoller{
		domain.SourceShopify: &stubPoller{},
		domain.SourceMeta:    &stubPoller{},
		domain.SourceGoogle:  &stubPoller{},
	}}
}

func (r *Registry) ForSource(source domain.Source) (SourcePoller, error) {
	p, ok := r.pollers[source]
	if !ok {
		return nil, domain.ErrInvalidSource
	}
	return p, nil
}

// Register replaces the poller for a source.
func (r *Registry) Register(source domain.Source, p SourcePoller) {
	r.pollers[source] = p
}

// stubPoller stands in until platform API clients land. It reports an empty
// page and echoes the cursor forward so the sync position never rewinds.
type stubPoller struct{}

func (stubPoller) Poll(ctx context.Context, conn *connection.Connection, cursor *domain.SyncCursor) (PollResult, error) {
	next := cursor.CursorValue
	if next == "" {
		next = "0"
	}
	return PollResult{NextCursorValue: next}, nil
}
