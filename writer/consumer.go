package writer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "oddsflow/config"
	"oddsflow/internal/metrics"
	"oddsflow/logger"
	"oddsflow/models"
)

// Consumer takes a snapshot of the store at a fixed interval and hands it to
// every sink. It never writes to the store.
type Consumer struct {
	source      Source
	sinks       []Sink
	filter      models.StatusFilter
	interval    time.Duration
	sinkTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
}

func NewConsumer(source Source, cfg appconfig.ConsumerConfig, sinks []Sink, log *logger.Log) (*Consumer, error) {
	filter, err := models.ParseStatusFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("consumer interval must be greater than 0")
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Consumer{
		source:      source,
		sinks:       sinks,
		filter:      filter,
		interval:    cfg.Interval,
		sinkTimeout: cfg.SinkTimeout,
		wg:          &sync.WaitGroup{},
		log:         log,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("snapshot consumer already running")
	}
	c.running = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	names := make([]string, 0, len(c.sinks))
	for _, s := range c.sinks {
		names = append(names, s.Name())
	}
	c.log.WithComponent("snapshot_consumer").WithFields(logger.Fields{
		"interval": c.interval.String(),
		"filter":   c.filter,
		"sinks":    names,
	}).Info("starting snapshot consumer")

	c.wg.Add(1)
	go c.run()
	return nil
}

func (c *Consumer) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Tick(c.ctx)
		}
	}
}

// Stop ends the loop and waits for an export in progress to finish.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	c.log.WithComponent("snapshot_consumer").Info("snapshot consumer stopped")
}

// Tick takes one snapshot and exports it to every sink.
func (c *Consumer) Tick(ctx context.Context) models.Snapshot {
	start := time.Now()
	snap := models.Snapshot{
		ID:      uuid.NewString(),
		TakenAt: start.UTC(),
		Filter:  c.filter,
		Records: c.source.Snapshot(c.filter),
		Summary: c.source.Summary(),
	}
	metrics.SetStoreRecords(snap.Summary.Records)
	metrics.EmitMetric(c.log, "snapshot_consumer", "snapshot_records", len(snap.Records), metrics.TypeGauge, logger.Fields{
		"filter": string(c.filter),
	})

	var wg sync.WaitGroup
	for _, sink := range c.sinks {
		wg.Add(1)
		go func(sink Sink) {
			defer wg.Done()
			c.export(ctx, sink, snap)
		}(sink)
	}
	wg.Wait()

	logger.LogPerformanceEntry(c.log.WithComponent("snapshot_consumer"), "snapshot_consumer", "tick", time.Since(start), logger.Fields{
		"snapshot_id": snap.ID,
		"records":     len(snap.Records),
	})
	return snap
}

func (c *Consumer) export(ctx context.Context, sink Sink, snap models.Snapshot) {
	if c.sinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.sinkTimeout)
		defer cancel()
	}

	log := c.log.WithComponent("snapshot_export").WithFields(logger.Fields{
		"sink":        sink.Name(),
		"snapshot_id": snap.ID,
	})
	start := time.Now()
	err := exportWithin(ctx, sink, snap)
	metrics.EmitDuration(c.log, "snapshot_export", "export_ms", time.Since(start), logger.Fields{
		"sink": sink.Name(),
		"ok":   err == nil,
	})
	if err != nil {
		metrics.IncExport(sink.Name(), "error")
		log.WithError(err).Warn("snapshot export failed")
		return
	}
	metrics.IncExport(sink.Name(), "ok")
	logger.LogDataFlowEntry(log, "store", sink.Name(), len(snap.Records), "odds_snapshot")
}

// exportWithin returns once the sink finishes or ctx is done, whichever comes
// first. A sink blocked in a write it cannot interrupt keeps running in the
// background but no longer holds up the tick.
func exportWithin(ctx context.Context, sink Sink, snap models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- sink.Export(ctx, snap)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("sink %s abandoned: %w", sink.Name(), ctx.Err())
	}
}
