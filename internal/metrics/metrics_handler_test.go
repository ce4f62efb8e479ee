package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oddsflow/logger"
)

func resetMetricHandlers(t *testing.T) {
	t.Helper()
	previous := registry
	registry = &handlerRegistry{}
	t.Cleanup(func() { registry = previous })
}

// collect registers a handler that records every metric it receives.
func collect(t *testing.T) func() []Metric {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []Metric
	)
	id := RegisterMetricHandler(func(m Metric) {
		mu.Lock()
		seen = append(seen, m)
		mu.Unlock()
	})
	t.Cleanup(func() { UnregisterMetricHandler(id) })
	return func() []Metric {
		mu.Lock()
		defer mu.Unlock()
		return append([]Metric(nil), seen...)
	}
}

func TestRegisterMetricHandlerReturnsUniqueIDs(t *testing.T) {
	resetMetricHandlers(t)

	first := RegisterMetricHandler(func(Metric) {})
	second := RegisterMetricHandler(func(Metric) {})
	assert.NotZero(t, first)
	assert.NotZero(t, second)
	assert.NotEqual(t, first, second)
	assert.Zero(t, RegisterMetricHandler(nil))
}

func TestDispatchFollowsRegistrationOrder(t *testing.T) {
	resetMetricHandlers(t)

	var order []string
	a := RegisterMetricHandler(func(Metric) { order = append(order, "dashboard") })
	RegisterMetricHandler(func(Metric) { order = append(order, "report") })

	EmitMetric(nil, "channels", "status_buffer_length", 0, TypeGauge, nil)
	assert.Equal(t, []string{"dashboard", "report"}, order)

	UnregisterMetricHandler(a)
	UnregisterMetricHandler(a)
	order = nil
	EmitMetric(nil, "channels", "status_buffer_length", 0, TypeGauge, nil)
	assert.Equal(t, []string{"report"}, order)
}

func TestEmitMetricCopiesFields(t *testing.T) {
	resetMetricHandlers(t)
	seen := collect(t)

	fields := logger.Fields{"sink": "kafka", "filter": "active"}
	EmitMetric(logger.Logger(), "snapshot_consumer", "snapshot_records", 3, TypeGauge, fields)

	got := seen()
	require.Len(t, got, 1)
	event := got[0]
	assert.Equal(t, "snapshot_consumer", event.Component)
	assert.Equal(t, "snapshot_records", event.Name)
	assert.Equal(t, TypeGauge, event.Type)
	assert.Equal(t, 3, event.Value)
	assert.NotContains(t, event.Fields, "metric")
	assert.NotContains(t, fields, "metric")

	event.Fields["sink"] = "s3"
	assert.Equal(t, "kafka", fields["sink"])
}

func TestEmitMetricDefaultsAndDrops(t *testing.T) {
	resetMetricHandlers(t)
	seen := collect(t)

	EmitMetric(nil, "store", "updates", 7, "", nil)
	EmitMetric(nil, "store", "", 1, TypeCounter, nil)

	got := seen()
	require.Len(t, got, 1)
	assert.Equal(t, TypeCounter, got[0].Type)
	assert.Equal(t, "updates", got[0].Name)
}

func TestEmitDurationInMilliseconds(t *testing.T) {
	resetMetricHandlers(t)
	seen := collect(t)

	EmitDuration(nil, "snapshot_export", "export_ms", 1500*time.Microsecond, logger.Fields{"sink": "csv"})

	got := seen()
	require.Len(t, got, 1)
	assert.Equal(t, TypeTiming, got[0].Type)
	assert.InDelta(t, 1.5, got[0].Value, 1e-9)
	assert.Equal(t, "csv", got[0].Fields["sink"])
}
