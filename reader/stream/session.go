package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"oddsflow/config"
	"oddsflow/internal/metrics"
	"oddsflow/logger"
	"oddsflow/models"
	"oddsflow/processor"
	"oddsflow/reader/sse"
)

const (
	defaultReadBuffer = 64 * 1024
	maxErrorBody      = 512
	apiKeyHeader      = "X-Api-Key"
)

// Upserter receives decoded odds batches.
type Upserter interface {
	Upsert(batch []models.RawRecord, status models.Status) int
}

// StatusSender receives frames that carry no odds.
type StatusSender interface {
	SendStatus(ctx context.Context, ev models.StatusEvent) bool
}

// Session owns one physical connection to the odds stream. Run may be called
// again after it returns; every call opens a new connection that resumes from
// the shared cursor.
type Session struct {
	client  *http.Client
	cfg     config.StreamConfig
	cursor  *models.StreamCursor
	records Upserter
	status  StatusSender
	log     *logger.Log
}

// NewSession wires a session. status may be nil, in which case informational
// frames are only logged.
func NewSession(client *http.Client, cfg config.StreamConfig, cursor *models.StreamCursor, records Upserter, status StatusSender, log *logger.Log) *Session {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.ConnectTimeout,
			IdleConnTimeout:       90 * time.Second,
		}}
	}
	if cursor == nil {
		cursor = models.NewStreamCursor(cfg.LastEntryID)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Session{
		client:  client,
		cfg:     cfg,
		cursor:  cursor,
		records: records,
		status:  status,
		log:     log,
	}
}

// Cursor returns the cursor shared by every connection of this session.
func (s *Session) Cursor() *models.StreamCursor {
	return s.cursor
}

// Run connects, streams until the connection ends and reports why it ended.
func (s *Session) Run(ctx context.Context) Result {
	sessionID := uuid.NewString()
	log := s.log.WithComponent("stream_session").WithField("session_id", sessionID)

	if err := s.cfg.Validate(); err != nil {
		return Result{Reason: ReasonFatal, Err: err}
	}

	req, err := s.buildRequest(ctx)
	if err != nil {
		return Result{Reason: ReasonFatal, Err: &config.ConfigurationError{Field: "stream.url", Reason: err.Error()}}
	}

	cursor, _ := s.cursor.Get()
	log.WithFields(logger.Fields{
		"sport":         s.cfg.Sport,
		"last_entry_id": cursor,
	}).Info("connecting to odds stream")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Reason: ReasonStopped}
		}
		return Result{Reason: ReasonRetryable, Err: &TransportError{Err: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Result{Reason: ReasonRetryable, Err: &TransportError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}}
	}

	log.Info("odds stream connected")
	return s.stream(ctx, resp.Body, sessionID, log)
}

func (s *Session) stream(ctx context.Context, body io.Reader, sessionID string, log *logger.Entry) Result {
	size := s.cfg.ReadBufferBytes
	if size <= 0 {
		size = defaultReadBuffer
	}
	reader := bufio.NewReaderSize(body, size)
	parser := sse.NewParser()
	res := Result{}

	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			logger.IncrementStreamRead(len(line))
			if frame, ok := parser.Feed(line); ok {
				s.handleFrame(ctx, frame, sessionID, log, &res)
			}
		}
		if err == nil {
			continue
		}

		// anything not yet terminated by a blank line is lost; the cursor
		// brings it back on the next connection
		if parser.Pending() {
			log.Debug("discarding partial frame at end of stream")
		}
		parser.Reset()

		if ctx.Err() != nil {
			res.Reason = ReasonStopped
			return res
		}
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		res.Reason = ReasonRetryable
		res.Err = &TransportError{Err: fmt.Errorf("stream closed: %w", err)}
		return res
	}
}

func (s *Session) handleFrame(ctx context.Context, frame models.Frame, sessionID string, log *logger.Entry, res *Result) {
	metrics.IncFrame(frame.Name)

	if !frame.Type.Decodable() {
		ev := models.StatusEvent{
			SessionID:  sessionID,
			Name:       frame.Name,
			Payload:    frame.Payload(),
			ReceivedAt: time.Now().UTC(),
		}
		if s.status != nil {
			s.status.SendStatus(ctx, ev)
		} else {
			log.WithField("event", frame.Name).Info("stream event")
		}
		res.FramesProcessed++
		return
	}

	start := time.Now()
	batch, err := processor.Decode(frame)
	if err != nil {
		metrics.IncDecodeError(frame.Name)
		log.WithError(err).WithField("event", frame.Name).Warn("dropping undecodable frame")
		return
	}
	if batch.Recovered {
		log.WithField("event", frame.Name).Debug("recovered object from noisy payload")
	}

	applied := 0
	if s.records != nil {
		applied = s.records.Upsert(batch.Records, frame.Type.Status())
	}
	if batch.HasCursor {
		s.cursor.Advance(batch.Cursor)
	}

	metrics.AddRecordsUpserted(string(frame.Type.Status()), applied)
	res.FramesProcessed++
	res.RecordsApplied += applied

	logger.LogPerformanceEntry(log, "stream_session", "apply_frame", time.Since(start), logger.Fields{
		"event":   frame.Name,
		"records": applied,
		"cursor":  batch.Cursor,
	})
}

func (s *Session) buildRequest(ctx context.Context) (*http.Request, error) {
	base := strings.TrimRight(s.cfg.URL, "/") + "/" + url.PathEscape(strings.TrimSpace(s.cfg.Sport))
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	if s.cfg.AuthMode != config.AuthModeHeader {
		q.Set("key", s.cfg.APIKey)
	}
	for _, v := range s.cfg.Sportsbooks {
		q.Add("sportsbook", v)
	}
	for _, v := range s.cfg.Leagues {
		q.Add("league", v)
	}
	for _, v := range s.cfg.Markets {
		q.Add("market", v)
	}
	for _, v := range s.cfg.FixtureIDs {
		q.Add("fixture_id", v)
	}
	if s.cfg.IncludeFixtureUpdates {
		q.Set("include_fixture_updates", "true")
	}
	if cursor, ok := s.cursor.Get(); ok {
		q.Set("last_entry_id", cursor)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.cfg.AuthMode == config.AuthModeHeader {
		req.Header.Set(apiKeyHeader, s.cfg.APIKey)
	}
	return req, nil
}
