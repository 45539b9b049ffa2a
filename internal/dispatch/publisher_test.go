package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func TestEnqueue(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.us-east-1.amazonaws.com/1/report-tasks.fifo")

	if err := p.Enqueue(context.Background(), "rep-1", "rep-1", "basic"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(mock.inputs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(mock.inputs))
	}

	input := mock.inputs[0]
	if input.MessageDeduplicationId == nil || *input.MessageDeduplicationId != "rep-1" {
		t.Errorf("dedupe id = %v, want rep-1", input.MessageDeduplicationId)
	}
	if input.MessageGroupId == nil || *input.MessageGroupId != taskGroupID {
		t.Errorf("group id = %v, want %q", input.MessageGroupId, taskGroupID)
	}

	var msg TaskMessage
	if err := json.Unmarshal([]byte(*input.MessageBody), &msg); err != nil {
		t.Fatalf("decode message body: %v", err)
	}
	if msg.ReportID != "rep-1" || msg.ProductCode != "basic" {
		t.Errorf("message = %+v", msg)
	}

	attr, ok := input.MessageAttributes["report_id"]
	if !ok || attr.StringValue == nil || *attr.StringValue != "rep-1" {
		t.Errorf("report_id attribute = %+v", attr)
	}
}

// Repeated sends for one report must carry the same deduplication id,
// so the FIFO queue collapses them into one effective message.
func TestEnqueueRetrySameDedupeID(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.us-east-1.amazonaws.com/1/report-tasks.fifo")

	for i := 0; i < 2; i++ {
		if err := p.Enqueue(context.Background(), "rep-1", "rep-1", "basic"); err != nil {
			t.Fatalf("Enqueue #%d: %v", i, err)
		}
	}
	if len(mock.inputs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(mock.inputs))
	}
	if *mock.inputs[0].MessageDeduplicationId != *mock.inputs[1].MessageDeduplicationId {
		t.Errorf("dedupe ids differ: %q vs %q",
			*mock.inputs[0].MessageDeduplicationId, *mock.inputs[1].MessageDeduplicationId)
	}
}

func TestEnqueueSendFailure(t *testing.T) {
	mock := &mockSQS{err: errors.New("sqs unavailable")}
	p := NewPublisher(mock, "https://sqs.us-east-1.amazonaws.com/1/report-tasks.fifo")

	if err := p.Enqueue(context.Background(), "rep-1", "rep-1", "basic"); err == nil {
		t.Fatal("Enqueue succeeded despite send failure")
	}
}
