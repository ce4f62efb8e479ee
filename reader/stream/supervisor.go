package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"oddsflow/config"
	"oddsflow/internal/metrics"
	"oddsflow/logger"
)

// Runner is one connection attempt.
type Runner interface {
	Run(ctx context.Context) Result
}

// Supervisor keeps a Runner connected until it is stopped or fails fatally.
// Consecutive failures back off exponentially; a session that processed at
// least one frame resets the delay to the minimum.
type Supervisor struct {
	runner  Runner
	backoff *backoff.Backoff
	log     *logger.Log

	// OnBackoff is called before every wait. It must not block.
	OnBackoff func(attempt int, delay time.Duration, res Result)

	wait     func(ctx context.Context, delay time.Duration) bool
	stopped  atomic.Bool
	mu       sync.Mutex
	cancel   context.CancelFunc
	attempts int
}

func NewSupervisor(runner Runner, cfg config.BackoffConfig, log *logger.Log) *Supervisor {
	if log == nil {
		log = logger.GetLogger()
	}
	factor := cfg.Factor
	if factor < 1 {
		factor = 2
	}
	return &Supervisor{
		runner: runner,
		backoff: &backoff.Backoff{
			Min:    cfg.Min,
			Max:    cfg.Max,
			Factor: factor,
			Jitter: cfg.Jitter,
		},
		log:  log,
		wait: waitForReconnect,
	}
}

// Run blocks until ctx is done, Stop is called or the runner reports a fatal
// error, which is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	log := s.log.WithComponent("stream_supervisor")
	for {
		if s.stopped.Load() || ctx.Err() != nil {
			log.Info("stream supervisor stopped")
			return nil
		}

		s.attempts++
		res := s.runner.Run(ctx)
		metrics.IncReconnect(res.Reason.String())

		switch res.Reason {
		case ReasonFatal:
			log.WithError(res.Err).Error("stream closed with a fatal error")
			return res.Err
		case ReasonStopped:
			log.WithField("frames", res.FramesProcessed).Info("stream session stopped")
			return nil
		}

		if s.stopped.Load() || ctx.Err() != nil {
			return nil
		}

		if res.FramesProcessed > 0 {
			s.backoff.Reset()
		}
		delay := s.backoff.Duration()
		metrics.ObserveBackoff(delay)

		log.WithError(res.Err).WithFields(logger.Fields{
			"attempt": s.attempts,
			"frames":  res.FramesProcessed,
			"records": res.RecordsApplied,
			"delay":   delay.String(),
		}).Warn("stream closed, reconnecting")

		if s.OnBackoff != nil {
			s.OnBackoff(s.attempts, delay, res)
		}
		if s.wait(ctx, delay) {
			return nil
		}
	}
}

// Stop prevents new connection attempts and closes the current one.
func (s *Supervisor) Stop() {
	s.stopped.Store(true)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
