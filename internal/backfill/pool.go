// Package backfill fetches historical odds for a set of fixtures with a
// bounded worker pool.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"oddsflow/internal/metrics"
	"oddsflow/logger"
	"oddsflow/models"
	"oddsflow/reader/rest"
)

// Fetcher loads the odds of a batch of fixtures.
type Fetcher interface {
	FixtureOdds(ctx context.Context, fixtureIDs, sportsbooks []string) ([]rest.FixtureOdds, error)
}

// ErrNoOdds marks a fixture the API knows about but has no odds for.
var ErrNoOdds = errors.New("fixture returned without odds")

// CapacityError reports a fixture that produced nothing. Other fixtures of
// the same run are unaffected.
type CapacityError struct {
	FixtureID string
	Err       error
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("backfill of fixture %s produced no odds: %v", e.FixtureID, e.Err)
}

func (e *CapacityError) Unwrap() error { return e.Err }

// Stats summarises one run.
type Stats struct {
	Requested int
	Committed int
	Empty     int
	Failed    int
	Discarded int
}

// Pool runs one request per fixture with at most Workers in flight and
// stops starting new requests once Quota fixtures have been collected.
type Pool struct {
	fetcher     Fetcher
	workers     int
	quota       int
	sportsbooks []string
	log         *logger.Log
}

func NewPool(fetcher Fetcher, workers, quota int, sportsbooks []string, log *logger.Log) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{
		fetcher:     fetcher,
		workers:     workers,
		quota:       quota,
		sportsbooks: sportsbooks,
		log:         log,
	}
}

// Run fetches fixtureIDs and returns the collected fixtures in completion
// order. Per-fixture failures are logged and counted, never returned.
func (p *Pool) Run(ctx context.Context, fixtureIDs []string) ([]rest.FixtureOdds, Stats, error) {
	log := p.log.WithComponent("backfill")

	var (
		mu      sync.Mutex
		results []rest.FixtureOdds
		stats   Stats
		stop    atomic.Bool
		wg      sync.WaitGroup
	)

	jobs := make(chan string)
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if stop.Load() || ctx.Err() != nil {
					continue
				}

				mu.Lock()
				stats.Requested++
				mu.Unlock()

				fixture, err := p.fetch(ctx, id)
				if err != nil {
					var capErr *CapacityError
					mu.Lock()
					if errors.As(err, &capErr) && errors.Is(err, ErrNoOdds) {
						stats.Empty++
						metrics.IncBackfillRequest("empty")
					} else {
						stats.Failed++
						metrics.IncBackfillRequest("error")
					}
					mu.Unlock()
					log.WithError(err).WithField("fixture_id", id).Warn("backfill request produced nothing")
					continue
				}

				mu.Lock()
				if stop.Load() {
					stats.Discarded++
					mu.Unlock()
					continue
				}
				results = append(results, fixture)
				stats.Committed++
				if p.quota > 0 && len(results) >= p.quota {
					stop.Store(true)
				}
				mu.Unlock()
				metrics.IncBackfillRequest("ok")
				log.WithFields(logger.Fields{
					"fixture_id": id,
					"odds":       len(fixture.Odds),
				}).Debug("backfill fixture collected")
			}
		}()
	}

feed:
	for _, id := range fixtureIDs {
		if stop.Load() {
			break
		}
		select {
		case jobs <- id:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	logger.LogDataFlowEntry(log, "rest_client", "backfill", len(results), "fixture_odds")
	if err := ctx.Err(); err != nil {
		return results, stats, err
	}
	return results, stats, nil
}

func (p *Pool) fetch(ctx context.Context, id string) (rest.FixtureOdds, error) {
	fixtures, err := p.fetcher.FixtureOdds(ctx, []string{id}, p.sportsbooks)
	if err != nil {
		return rest.FixtureOdds{}, &CapacityError{FixtureID: id, Err: err}
	}
	for _, f := range fixtures {
		if f.ID != id && f.ID != "" {
			continue
		}
		if len(f.Odds) == 0 {
			break
		}
		if f.ID == "" {
			f.ID = id
		}
		return f, nil
	}
	return rest.FixtureOdds{}, &CapacityError{FixtureID: id, Err: ErrNoOdds}
}

// Flatten turns collected fixtures into one raw row per odds entry, tagging
// each row with its fixture id when the entry lacks one.
func Flatten(fixtures []rest.FixtureOdds) []models.RawRecord {
	var rows []models.RawRecord
	for _, f := range fixtures {
		for _, odd := range f.Odds {
			row := odd.Clone()
			if _, ok := row["fixture_id"]; !ok {
				row["fixture_id"] = f.ID
			}
			rows = append(rows, row)
		}
	}
	return rows
}
