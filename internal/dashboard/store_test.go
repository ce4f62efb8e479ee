package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oddsflow/internal/metrics"
)

func TestMetricStoreLimit(t *testing.T) {
	store := newMetricStore(2)
	for i := 0; i < 5; i++ {
		store.handle(metrics.Metric{Timestamp: time.Unix(int64(i), 0), Name: "metric", Value: i})
	}

	snapshot := store.snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, 3, snapshot[0].Value)
	assert.Equal(t, 4, snapshot[1].Value)
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "warning"
	entry.Data = logrus.Fields{"component": "stream_session", "error": errors.New("eof"), "cursor": "42"}

	require.NoError(t, store.Fire(entry))

	snapshot := store.snapshot()
	require.Len(t, snapshot, 1)

	got := snapshot[0]
	assert.Equal(t, "stream_session", got.Component)
	assert.Equal(t, "42", got.Fields["cursor"])
	assert.Equal(t, "eof", got.Fields["error"])
	assert.NotContains(t, got.Fields, "component", "component should not be duplicated into fields")
}

func TestLogStoreFilter(t *testing.T) {
	store := newLogStore(10)
	fire := func(level logrus.Level, component string) {
		entry := logrus.NewEntry(logrus.New())
		entry.Level = level
		entry.Message = level.String()
		entry.Data = logrus.Fields{"component": component}
		require.NoError(t, store.Fire(entry))
	}
	fire(logrus.DebugLevel, "supervisor")
	fire(logrus.WarnLevel, "supervisor")
	fire(logrus.ErrorLevel, "snapshot_export")

	assert.Len(t, store.filter(logrus.WarnLevel, ""), 2)

	got := store.filter(logrus.TraceLevel, "supervisor")
	require.Len(t, got, 2)
	assert.Equal(t, "debug", got[0].Level)

	assert.Len(t, store.snapshot(), 3, "filter must not mutate the store")
}

func TestLogStoreRespectsLimitAndClose(t *testing.T) {
	store := newLogStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "msg"
		entry.Level = logrus.InfoLevel
		entry.Data = logrus.Fields{"index": i}
		require.NoError(t, store.Fire(entry))
	}
	assert.Len(t, store.snapshot(), 2)

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	require.NoError(t, store.Fire(entry))

	assert.Len(t, store.snapshot(), 2, "store accepted entries after close")
}
