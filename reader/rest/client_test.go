package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oddsflow/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewClient(config.RestConfig{URL: ts.URL + "/api/v3/", APIKey: "k", RequestsPerSecond: 100, Burst: 10}, ts.Client(), nil)
}

func TestLeagues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/leagues", r.URL.Path)
		assert.Equal(t, "football", r.URL.Query().Get("sport"))
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		w.Write([]byte(`{"data":[{"id":"nfl","name":"NFL","sport":"football"},{"id":"ncaaf","name":"NCAAF"}]}`))
	})

	leagues, err := c.Leagues(context.Background(), "football")
	require.NoError(t, err)
	require.Len(t, leagues, 2)
	assert.Equal(t, "nfl", leagues[0].ID)
}

func TestValidateLeagues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"nfl","name":"NFL"}]}`))
	})

	require.NoError(t, c.ValidateLeagues(context.Background(), "football", []string{"nfl", "NFL"}))

	err := c.ValidateLeagues(context.Background(), "football", []string{"NFL", "XFL"})
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "XFL")
}

func TestFixtureOdds(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/fixtures/odds", r.URL.Path)
		assert.Equal(t, []string{"f1", "f2"}, r.URL.Query()["fixture_id"])
		assert.Equal(t, []string{"Pinnacle"}, r.URL.Query()["sportsbook"])
		w.Write([]byte(`{"data":[{"id":"f1","odds":[{"id":"o1","price":-110}]},{"id":"f2","odds":[]}]}`))
	})

	fixtures, err := c.FixtureOdds(context.Background(), []string{"f1", "f2"}, []string{"Pinnacle"})
	require.NoError(t, err)
	require.Len(t, fixtures, 2)
	require.Len(t, fixtures[0].Odds, 1)
	assert.Equal(t, json.Number("-110"), fixtures[0].Odds[0]["price"])
	assert.Empty(t, fixtures[1].Odds)
}

func TestStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := c.Leagues(context.Background(), "football")
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusTooManyRequests, serr.StatusCode)
	assert.Contains(t, serr.Body, "quota exceeded")
}
