package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/reportsvc/go-report-pipeline/internal/aws"
)

// Generation tasks for one deployment share a message group so FIFO
// ordering applies per queue, not per report.
const taskGroupID = "report-generation"

// TaskMessage is the payload sent to the generation queue. The worker
// looks up any further detail itself to avoid payload/record drift.
type TaskMessage struct {
	ReportID    string `json:"report_id"`
	ProductCode string `json:"product_code"`
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      aws.SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient aws.SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Enqueue publishes a generation task. The queue must be FIFO: the
// dedupe key becomes the queue-level deduplication id, so a retried
// send after a crash between SendMessage and the record update cannot
// produce a second effective message. Config validation rejects
// non-FIFO queue URLs.
func (p *Publisher) Enqueue(ctx context.Context, reportID, dedupeKey, productCode string) error {
	body, err := json.Marshal(TaskMessage{ReportID: reportID, ProductCode: productCode})
	if err != nil {
		return fmt.Errorf("marshal task message: %w", err)
	}
	msgBody := string(body)

	input := &sqs.SendMessageInput{
		QueueUrl:               &p.QueueURL,
		MessageBody:            &msgBody,
		MessageDeduplicationId: &dedupeKey,
		MessageGroupId:         awsString(taskGroupID),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"report_id": {
				DataType:    awsString("String"),
				StringValue: &reportID,
			},
		},
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }
