package metrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"oddsflow/logger"
	"oddsflow/models"
)

type cloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher publishes store summary gauges for every snapshot it
// receives.
type CloudWatchPublisher struct {
	client    cloudWatchAPI
	namespace string
	log       *logger.Log
}

// NewCloudWatchPublisher loads the default AWS configuration for region and
// returns a publisher writing into namespace.
func NewCloudWatchPublisher(ctx context.Context, region, namespace string, log *logger.Log) (*CloudWatchPublisher, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	log.WithComponent("cloudwatch").WithFields(logger.Fields{
		"region":    cfg.Region,
		"namespace": namespace,
	}).Info("initialized CloudWatch client")

	return newCloudWatchPublisher(cloudwatch.NewFromConfig(cfg), namespace, log), nil
}

func newCloudWatchPublisher(client cloudWatchAPI, namespace string, log *logger.Log) *CloudWatchPublisher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &CloudWatchPublisher{client: client, namespace: namespace, log: log}
}

func (p *CloudWatchPublisher) Name() string { return "cloudwatch" }

// Export turns the snapshot summary into metric data and publishes it in a
// single PutMetricData call.
func (p *CloudWatchPublisher) Export(ctx context.Context, snap models.Snapshot) error {
	dims := []cwtypes.Dimension{{Name: aws.String("filter"), Value: aws.String(string(snap.Filter))}}
	gauges := []struct {
		name  string
		value float64
	}{
		{"store_records", float64(snap.Summary.Records)},
		{"snapshot_records", float64(len(snap.Records))},
		{"total_updates", float64(snap.Summary.TotalUpdates)},
		{"locked_count", float64(snap.Summary.LockedCount)},
		{"active_fixtures", float64(len(snap.Summary.ActiveFixtureIDs))},
	}

	data := make([]cwtypes.MetricDatum, 0, len(gauges))
	for _, g := range gauges {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(g.name),
			Dimensions: dims,
			Timestamp:  aws.Time(snap.TakenAt),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(g.value),
		})
	}

	if _, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}); err != nil {
		return fmt.Errorf("failed to publish CloudWatch metrics: %w", err)
	}

	names := make([]string, 0, len(data))
	for _, datum := range data {
		names = append(names, *datum.MetricName)
	}
	p.log.WithComponent("cloudwatch").WithField("metrics", strings.Join(names, ",")).Debug("published metrics to CloudWatch")
	return nil
}
