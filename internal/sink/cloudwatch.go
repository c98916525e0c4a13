package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/backend"
	"github.com/ethpandaops/statsd-cloudwatch/internal/sink/credentials"
	"github.com/ethpandaops/statsd-cloudwatch/internal/version"
)

// PutMetricDataAPI is the subset of the CloudWatch client used by the sink.
type PutMetricDataAPI interface {
	PutMetricData(
		ctx context.Context,
		params *cloudwatch.PutMetricDataInput,
		optFns ...func(*cloudwatch.Options),
	) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch submits batches with PutMetricData.
type CloudWatch struct {
	log    logrus.FieldLogger
	client PutMetricDataAPI
}

var _ backend.Submitter = (*CloudWatch)(nil)

// NewCloudWatch creates a CloudWatch sink over client.
func NewCloudWatch(log logrus.FieldLogger, client PutMetricDataAPI) *CloudWatch {
	return &CloudWatch{
		log:    log.WithField("sink", TypeCloudWatch),
		client: client,
	}
}

// Name returns the sink identifier.
func (c *CloudWatch) Name() string {
	return TypeCloudWatch
}

// Submit publishes one batch. The batch must hold at most
// backend.MaxBatchItems data points.
func (c *CloudWatch) Submit(ctx context.Context, batch backend.Batch) error {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(batch.Namespace),
		MetricData: toMetricData(batch.Items),
	}

	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("putting metric data (%s: %s): %w",
				apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
		}

		return fmt.Errorf("putting metric data: %w", err)
	}

	return nil
}

func toMetricData(items []backend.Datum) []types.MetricDatum {
	data := make([]types.MetricDatum, 0, len(items))

	for _, d := range items {
		data = append(data, toMetricDatum(d))
	}

	return data
}

func toMetricDatum(d backend.Datum) types.MetricDatum {
	datum := types.MetricDatum{
		MetricName: aws.String(d.MetricName),
		Unit:       types.StandardUnit(d.Unit),
		Timestamp:  aws.Time(d.Timestamp),
	}

	if d.Statistics != nil {
		datum.StatisticValues = &types.StatisticSet{
			Minimum:     aws.Float64(d.Statistics.Minimum),
			Maximum:     aws.Float64(d.Statistics.Maximum),
			Sum:         aws.Float64(d.Statistics.Sum),
			SampleCount: aws.Float64(d.Statistics.SampleCount),
		}
	} else {
		datum.Value = aws.Float64(d.Value)
	}

	if len(d.Dimensions) > 0 {
		datum.Dimensions = make([]types.Dimension, 0, len(d.Dimensions))

		for _, dim := range d.Dimensions {
			datum.Dimensions = append(datum.Dimensions, types.Dimension{
				Name:  aws.String(dim.Name),
				Value: aws.String(dim.Value),
			})
		}
	}

	return datum
}

// newCloudWatchSubmitter builds the CloudWatch client. A credential
// failure still yields a usable submitter alongside the error so the
// instance can run degraded.
func newCloudWatchSubmitter(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg CloudWatchConfig,
) (backend.Submitter, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithAppID(version.Name),
	}

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Proxy != "" {
		u, err := proxyURL(cfg.Proxy)
		if err != nil {
			return nil, err
		}

		client := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			tr.Proxy = http.ProxyURL(u)
		})

		opts = append(opts, config.WithHTTPClient(client))
	}

	provider, credErr := credentials.Resolve(ctx, log, cfg.IAMRole, imds.New(imds.Options{}))
	if provider != nil {
		opts = append(opts, config.WithCredentialsProvider(provider))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	log.WithFields(logrus.Fields{
		"region":   awsCfg.Region,
		"endpoint": cfg.Endpoint,
		"proxy":    cfg.Proxy != "",
		"iam_role": cfg.IAMRole,
	}).Info("CloudWatch client configured")

	return NewCloudWatch(log, client), credErr
}
