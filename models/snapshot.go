package models

import "time"

// StoreSummary carries the aggregate counters of the record store.
type StoreSummary struct {
	Records          int      `json:"records"`
	TotalUpdates     int64    `json:"total_updates"`
	LockedCount      int64    `json:"locked_count"`
	ActiveFixtureIDs []string `json:"active_fixture_ids"`
}

// Snapshot is a point-in-time copy of the store handed to export sinks.
type Snapshot struct {
	ID      string       `json:"id"`
	TakenAt time.Time    `json:"taken_at"`
	Filter  StatusFilter `json:"filter"`
	Records []Record     `json:"records"`
	Summary StoreSummary `json:"summary"`
}
