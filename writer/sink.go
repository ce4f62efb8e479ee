package writer

import (
	"context"

	"oddsflow/models"
)

// Sink receives every snapshot taken by the consumer. Sinks run
// concurrently on the same snapshot and must treat it as read-only.
type Sink interface {
	Name() string
	Export(ctx context.Context, snap models.Snapshot) error
}

// Source is the read side of the record store.
type Source interface {
	Snapshot(filter models.StatusFilter) []models.Record
	Summary() models.StoreSummary
}
