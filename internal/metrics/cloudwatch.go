package metrics

import (
	"context"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/aws"
)

// CloudWatch implements Recorder with one PutMetricData call per event. The
// worker runs inside Lambda where nothing scrapes /metrics.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewCloudWatch returns a recorder publishing under namespace.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger zerolog.Logger) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, timeout: 2 * time.Second, logger: logger}
}

func (c *CloudWatch) OrderCreated() { c.put("OrdersCreated") }

func (c *CloudWatch) PaymentRequested(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.put("PaymentRequests", dim("Result", result))
}

func (c *CloudWatch) Settled(outcome string) { c.put("Settlements", dim("Outcome", outcome)) }

func (c *CloudWatch) SettleConflict() { c.put("SettlementConflicts") }

func (c *CloudWatch) WebhookReceived(eventType, result string) {
	c.put("Webhooks", dim("Type", eventType), dim("Result", result))
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: awssdk.String(name), Value: awssdk.String(value)}
}

// put never fails the caller; a lost data point is logged.
func (c *CloudWatch) put(name string, dims ...cwtypes.Dimension) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: awssdk.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: awssdk.String(name),
			Dimensions: dims,
			Unit:       cwtypes.StandardUnitCount,
			Value:      awssdk.Float64(1),
			Timestamp:  awssdk.Time(time.Now()),
		}},
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("metric", name).Msg("put metric data failed")
	}
}
