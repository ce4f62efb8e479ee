package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"oddsflow/config"
	"oddsflow/logger"
	"oddsflow/models"
)

const maxErrorBody = 512

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned HTTP %d: %s", e.Path, e.StatusCode, e.Body)
}

type League struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Sport  string `json:"sport"`
	Region string `json:"region"`
}

// FixtureOdds is one fixture of a historical odds response.
type FixtureOdds struct {
	ID       string             `json:"id"`
	League   string             `json:"league"`
	HomeTeam string             `json:"home_team_display"`
	AwayTeam string             `json:"away_team_display"`
	Start    string             `json:"start_date"`
	Odds     []models.RawRecord `json:"odds"`
}

// Client talks to the odds REST API. Requests share one rate limiter.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	log     *logger.Log
}

func NewClient(cfg config.RestConfig, httpClient *http.Client, log *logger.Log) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}
}

// Leagues lists the leagues offered for sport.
func (c *Client) Leagues(ctx context.Context, sport string) ([]League, error) {
	q := url.Values{}
	q.Set("sport", sport)

	var out struct {
		Data []League `json:"data"`
	}
	if err := c.get(ctx, "/leagues", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ValidateLeagues checks every wanted league against the leagues offered for
// sport, matching id or name case-insensitively. The error lists every
// unknown league.
func (c *Client) ValidateLeagues(ctx context.Context, sport string, wanted []string) error {
	if len(wanted) == 0 {
		return nil
	}
	leagues, err := c.Leagues(ctx, sport)
	if err != nil {
		return err
	}

	known := make(map[string]struct{}, len(leagues)*2)
	for _, l := range leagues {
		known[strings.ToLower(l.ID)] = struct{}{}
		known[strings.ToLower(l.Name)] = struct{}{}
	}

	var unknown []string
	for _, w := range wanted {
		if _, ok := known[strings.ToLower(strings.TrimSpace(w))]; !ok {
			unknown = append(unknown, w)
		}
	}
	if len(unknown) > 0 {
		return &config.ConfigurationError{
			Field:  "stream.leagues",
			Reason: fmt.Sprintf("unknown leagues for %s: %s", sport, strings.Join(unknown, ", ")),
		}
	}
	return nil
}

// FixtureOdds fetches the current odds of the given fixtures.
func (c *Client) FixtureOdds(ctx context.Context, fixtureIDs, sportsbooks []string) ([]FixtureOdds, error) {
	q := url.Values{}
	for _, id := range fixtureIDs {
		q.Add("fixture_id", id)
	}
	for _, sb := range sportsbooks {
		q.Add("sportsbook", sb)
	}

	var out struct {
		Data []FixtureOdds `json:"data"`
	}
	if err := c.get(ctx, "/fixtures/odds", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	logger.IncrementRestRead(len(body))

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	logger.LogPerformanceEntry(c.log.WithComponent("rest_client"), "rest_client", "GET "+path, time.Since(start), logger.Fields{
		"status": resp.StatusCode,
		"bytes":  len(body),
	})
	return nil
}
