package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oddsflow/logger"
	"oddsflow/models"
)

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	require.FailNow(t, "unsupported metric type")
	return 0
}

func TestCountersIncrement(t *testing.T) {
	before := metricValue(t, framesTotal.WithLabelValues("odds"))
	IncFrame("odds")
	IncFrame("odds")
	assert.Equal(t, before+2, metricValue(t, framesTotal.WithLabelValues("odds")))

	beforeActive := metricValue(t, recordsUpserted.WithLabelValues("active"))
	AddRecordsUpserted("active", 0)
	AddRecordsUpserted("active", 3)
	assert.Equal(t, beforeActive+3, metricValue(t, recordsUpserted.WithLabelValues("active")))

	SetStoreRecords(42)
	assert.Equal(t, float64(42), metricValue(t, storeRecords))

	beforeExport := metricValue(t, exportsTotal.WithLabelValues("kafka", "error"))
	IncExport("kafka", "error")
	assert.Equal(t, beforeExport+1, metricValue(t, exportsTotal.WithLabelValues("kafka", "error")))
}

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatchPublisherExport(t *testing.T) {
	fake := &fakeCloudWatch{}
	p := newCloudWatchPublisher(fake, "OddsTest", logger.Logger())

	snap := models.Snapshot{
		TakenAt: time.Now(),
		Filter:  models.FilterActive,
		Records: make([]models.Record, 3),
		Summary: models.StoreSummary{
			Records:          5,
			TotalUpdates:     11,
			LockedCount:      2,
			ActiveFixtureIDs: []string{"f1", "f2"},
		},
	}
	require.NoError(t, p.Export(context.Background(), snap))
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "OddsTest", *in.Namespace)
	values := map[string]float64{}
	for _, d := range in.MetricData {
		values[*d.MetricName] = *d.Value
	}
	want := map[string]float64{
		"store_records":    5,
		"snapshot_records": 3,
		"total_updates":    11,
		"locked_count":     2,
		"active_fixtures":  2,
	}
	assert.Equal(t, want, values)
}

func TestCloudWatchPublisherError(t *testing.T) {
	fake := &fakeCloudWatch{err: errors.New("throttled")}
	p := newCloudWatchPublisher(fake, "OddsTest", nil)
	assert.ErrorContains(t, p.Export(context.Background(), models.Snapshot{}), "throttled")
	assert.Equal(t, "cloudwatch", p.Name())
}
