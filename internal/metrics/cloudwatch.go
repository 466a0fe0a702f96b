package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatch metric and dimension names.
const (
	MetricAPIRequest        = "APIRequest"
	MetricAPILatency        = "APIRequestLatency"
	DimEndpoint             = "Endpoint"
	DimMethod               = "Method"
	DimStatusClass          = "StatusClass"
	cloudWatchRecordTimeout = 2 * time.Second
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector emits one request count and one latency datum per
// request. Failures are logged and never affect the response.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{client: client, namespace: namespace, logger: logger}
}

// RecordRequest satisfies core.MetricsCollector.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	class := "unknown"
	if code, err := strconv.Atoi(status); err == nil {
		class = StatusClass(code)
	}
	dims := []cwtypes.Dimension{
		{Name: aws.String(DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(DimMethod), Value: aws.String(method)},
		{Name: aws.String(DimStatusClass), Value: aws.String(class)},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricAPIRequest),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(MetricAPILatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims[:2],
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cloudWatchRecordTimeout)
	defer cancel()
	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.Error("failed to record request metric",
			"error", err.Error(),
			"endpoint", endpoint,
			"status", status,
		)
	}
}

// RequestCollector is the per-request hook shared by every collector.
type RequestCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Fanout forwards each request to every collector.
type Fanout []RequestCollector

func (f Fanout) RecordRequest(method, endpoint, status string, duration time.Duration) {
	for _, c := range f {
		c.RecordRequest(method, endpoint, status, duration)
	}
}
