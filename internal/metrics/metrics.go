// Registers:
//
//	#oddsflow_frames_total
//	#oddsflow_decode_errors_total
//	#oddsflow_records_upserted_total
//	#oddsflow_reconnects_total
//	#oddsflow_backoff_seconds
//	#oddsflow_store_records
//	#oddsflow_exports_total
//	#oddsflow_backfill_requests_total
//
// and exposes them through Handler for the dashboard's /metrics route.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsflow_frames_total",
		Help: "Server-sent events received, by event name",
	}, []string{"event"})

	decodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsflow_decode_errors_total",
		Help: "Frames dropped because the payload could not be decoded",
	}, []string{"event"})

	recordsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsflow_records_upserted_total",
		Help: "Odds records applied to the store, by status",
	}, []string{"status"})

	reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsflow_reconnects_total",
		Help: "Stream sessions that closed, by reason",
	}, []string{"reason"})

	backoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oddsflow_backoff_seconds",
		Help:    "Delay applied before reconnecting",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
	})

	storeRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oddsflow_store_records",
		Help: "Distinct records currently held in memory",
	})

	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsflow_exports_total",
		Help: "Snapshot exports by sink and outcome",
	}, []string{"sink", "outcome"})

	backfillRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsflow_backfill_requests_total",
		Help: "Historical odds requests by outcome",
	}, []string{"outcome"})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncFrame(event string) {
	framesTotal.WithLabelValues(event).Inc()
}

func IncDecodeError(event string) {
	decodeErrors.WithLabelValues(event).Inc()
}

func AddRecordsUpserted(status string, n int) {
	if n > 0 {
		recordsUpserted.WithLabelValues(status).Add(float64(n))
	}
}

func IncReconnect(reason string) {
	reconnects.WithLabelValues(reason).Inc()
}

func ObserveBackoff(d time.Duration) {
	backoffSeconds.Observe(d.Seconds())
}

func SetStoreRecords(n int) {
	storeRecords.Set(float64(n))
}

// IncExport counts one export attempt; outcome is "ok" or "error".
func IncExport(sink, outcome string) {
	exportsTotal.WithLabelValues(sink, outcome).Inc()
}

func IncBackfillRequest(outcome string) {
	backfillRequests.WithLabelValues(outcome).Inc()
}
