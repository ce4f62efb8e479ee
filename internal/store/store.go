// Package store keeps the latest odds record per id in memory.
package store

import (
	"sort"
	"sync"
	"time"

	"oddsflow/models"
)

// Store is a concurrent id to record map with aggregate counters. It has a
// single writer (the stream session) and any number of readers.
type Store struct {
	mu           sync.RWMutex
	records      map[string]models.Record
	fixtures     map[string]struct{}
	totalUpdates int64
	lockedCount  int64
	now          func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		records:  make(map[string]models.Record),
		fixtures: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Upsert applies a batch of raw records with the given status. Records
// without an id are skipped. It returns the number of records applied.
func (s *Store) Upsert(batch []models.RawRecord, status models.Status) int {
	if len(batch) == 0 {
		return 0
	}

	// build outside the lock, the decimal math is the expensive part
	now := s.now().UTC()
	built := make([]models.Record, 0, len(batch))
	for _, raw := range batch {
		rec, ok := models.NewRecord(raw, status, now)
		if !ok {
			continue
		}
		built = append(built, rec)
	}
	if len(built) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range built {
		s.records[rec.ID] = rec
		s.totalUpdates++
		if rec.FixtureID != "" {
			s.fixtures[rec.FixtureID] = struct{}{}
		}
		if rec.Status == models.StatusLocked {
			s.lockedCount++
		}
	}
	return len(built)
}

// Snapshot returns a point-in-time copy of the records matching filter,
// ordered by fixture, market, price (highest first, unpriced last) and id.
func (s *Store) Snapshot(filter models.StatusFilter) []models.Record {
	s.mu.RLock()
	out := make([]models.Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Matches(rec.Status) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	// records are replaced, never mutated in place, so cloning after the
	// unlock still sees a single write per record
	for i := range out {
		out[i] = out[i].Clone()
	}
	SortRecords(out)
	return out
}

// SortRecords orders records the way Snapshot returns them.
func SortRecords(records []models.Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.FixtureID != b.FixtureID {
			return a.FixtureID < b.FixtureID
		}
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		switch {
		case a.Price != nil && b.Price == nil:
			return true
		case a.Price == nil && b.Price != nil:
			return false
		case a.Price != nil && b.Price != nil && *a.Price != *b.Price:
			return *a.Price > *b.Price
		}
		return a.ID < b.ID
	})
}

// Summary returns the aggregate counters.
func (s *Store) Summary() models.StoreSummary {
	s.mu.RLock()
	summary := models.StoreSummary{
		Records:          len(s.records),
		TotalUpdates:     s.totalUpdates,
		LockedCount:      s.lockedCount,
		ActiveFixtureIDs: make([]string, 0, len(s.fixtures)),
	}
	for id := range s.fixtures {
		summary.ActiveFixtureIDs = append(summary.ActiveFixtureIDs, id)
	}
	s.mu.RUnlock()

	sort.Strings(summary.ActiveFixtureIDs)
	return summary
}

// Get returns a copy of the record stored under id.
func (s *Store) Get(id string) (models.Record, bool) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return models.Record{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of distinct records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Reset drops every record and zeroes the counters.
func (s *Store) Reset() {
	s.mu.Lock()
	s.records = make(map[string]models.Record)
	s.fixtures = make(map[string]struct{})
	s.totalUpdates = 0
	s.lockedCount = 0
	s.mu.Unlock()
}
