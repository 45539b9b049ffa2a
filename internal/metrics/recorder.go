package metrics

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/reportsvc/go-report-pipeline/internal/aws"
)

const metricStateTransition = "StateTransition"

// Recorder emits pipeline counters to CloudWatch. Emission is
// best-effort: a metrics failure never fails the request that caused it.
type Recorder struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *zap.Logger
}

// NewRecorder returns a Recorder publishing under namespace.
func NewRecorder(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *Recorder {
	return &Recorder{client: client, namespace: namespace, logger: logger}
}

// CountTransition records one state transition. Safe on a nil Recorder.
func (r *Recorder) CountTransition(ctx context.Context, state string) {
	if r == nil || r.client == nil {
		return
	}
	one := 1.0
	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &r.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString(metricStateTransition),
				Value:      &one,
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: awsString("State"), Value: &state},
				},
			},
		},
	})
	if err != nil {
		r.logger.Warn("put metric data failed", zap.Error(err))
	}
}

func awsString(s string) *string { return &s }
