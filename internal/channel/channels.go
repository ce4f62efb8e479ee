package channel

import (
	"context"
	"sync"
	"time"

	"oddsflow/internal/metrics"
	"oddsflow/logger"
	"oddsflow/models"
)

type ChannelStats struct {
	StatusSent    int64
	StatusDropped int64
}

// Channels carries informational stream events (fixture status and unknown
// event types) from the ingestion goroutine to whoever reports them.
type Channels struct {
	Status chan models.StatusEvent

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewChannels(statusBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Status: make(chan models.StatusEvent, statusBufferSize),
		log:    log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"status_buffer_size": statusBufferSize,
	}).Info("channels initialized")

	return c
}

func (c *Channels) Close() {
	c.closeOnce.Do(func() {
		close(c.Status)
		c.log.WithComponent("channels").Info("channels closed")
	})
}

// SendStatus never blocks the caller. A full buffer drops the event.
func (c *Channels) SendStatus(ctx context.Context, ev models.StatusEvent) bool {
	select {
	case c.Status <- ev:
		c.statsMutex.Lock()
		c.stats.StatusSent++
		c.statsMutex.Unlock()
		logger.RecordChannelMessage("status", len(ev.Payload))
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.StatusDropped++
		c.statsMutex.Unlock()
		c.log.WithComponent("channels").WithField("event", ev.Name).Warn("status channel is full, dropping event")
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting emits the status buffer occupancy every interval until
// ctx is done. A non-positive interval means one second.
func (c *Channels) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := c.GetStats()
				metrics.EmitMetric(c.log, "channels", "status_buffer_length", len(c.Status), metrics.TypeGauge, logger.Fields{
					"buffer":   "status",
					"capacity": cap(c.Status),
					"dropped":  stats.StatusDropped,
				})
			}
		}
	}()
}

// LogStatusEvents logs every informational event until the channel is closed
// or ctx is done.
func LogStatusEvents(ctx context.Context, events <-chan models.StatusEvent, log *logger.Log) {
	entry := log.WithComponent("fixture_status")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			entry.WithFields(logger.Fields{
				"session_id": ev.SessionID,
				"event":      ev.Name,
				"payload":    ev.Payload,
			}).Info("stream event")
		}
	}
}
