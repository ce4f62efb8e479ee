package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oddsflow/models"
	"oddsflow/reader/rest"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	respond  func(id string) ([]rest.FixtureOdds, error)
}

func (f *fakeFetcher) FixtureOdds(ctx context.Context, ids, sportsbooks []string) ([]rest.FixtureOdds, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, ids[0])
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.respond(ids[0])
}

func withOdds(id string) ([]rest.FixtureOdds, error) {
	return []rest.FixtureOdds{{ID: id, Odds: []models.RawRecord{{"id": id + "-o1"}}}}, nil
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("f%02d", i)
	}
	return out
}

func TestPoolCollectsAll(t *testing.T) {
	f := &fakeFetcher{respond: withOdds, delay: time.Millisecond}
	p := NewPool(f, 4, 100, []string{"Pinnacle"}, nil)

	results, stats, err := p.Run(context.Background(), ids(20))
	require.NoError(t, err)
	assert.Len(t, results, 20)
	assert.Equal(t, 20, stats.Committed)
	assert.Equal(t, 20, stats.Requested)
	assert.LessOrEqual(t, f.maxSeen.Load(), int32(4))
}

func TestPoolStopsAtQuota(t *testing.T) {
	f := &fakeFetcher{respond: withOdds, delay: 2 * time.Millisecond}
	p := NewPool(f, 3, 5, nil, nil)

	results, stats, err := p.Run(context.Background(), ids(50))
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, 5, stats.Committed)
	// requests already in flight when the quota is hit may still run
	assert.LessOrEqual(t, stats.Requested, 5+3)
	assert.Equal(t, stats.Requested, stats.Committed+stats.Discarded+stats.Empty+stats.Failed)
}

func TestPoolEmptyAndFailedFixturesDoNotStopSiblings(t *testing.T) {
	f := &fakeFetcher{respond: func(id string) ([]rest.FixtureOdds, error) {
		switch id {
		case "f01":
			return []rest.FixtureOdds{{ID: id}}, nil
		case "f02":
			return nil, errors.New("HTTP 500")
		}
		return withOdds(id)
	}}
	p := NewPool(f, 2, 100, nil, nil)

	results, stats, err := p.Run(context.Background(), ids(5))
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 1, stats.Empty)
	assert.Equal(t, 1, stats.Failed)
}

func TestPoolCancelled(t *testing.T) {
	f := &fakeFetcher{respond: withOdds}
	p := NewPool(f, 2, 10, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, _, err := p.Run(ctx, ids(10))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestCapacityError(t *testing.T) {
	f := &fakeFetcher{respond: func(id string) ([]rest.FixtureOdds, error) { return nil, nil }}
	p := NewPool(f, 1, 1, nil, nil)

	_, err := p.fetch(context.Background(), "f1")
	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, "f1", capErr.FixtureID)
	assert.ErrorIs(t, err, ErrNoOdds)
}

func TestFlatten(t *testing.T) {
	rows := Flatten([]rest.FixtureOdds{
		{ID: "f1", Odds: []models.RawRecord{{"id": "a"}, {"id": "b", "fixture_id": "other"}}},
		{ID: "f2"},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "f1", rows[0]["fixture_id"])
	assert.Equal(t, "other", rows[1]["fixture_id"])
}
