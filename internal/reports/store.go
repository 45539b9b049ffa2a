package reports

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/reportsvc/go-report-pipeline/internal/aws"
)

// ErrStateConflict indicates the stored state did not match the expected
// state of a transition. Callers treat it as "someone else already
// handled this event".
var ErrStateConflict = errors.New("state conflict/conditional failed")

// Store encapsulates operations on the reports table. The conditional
// Transition is the only concurrency-control primitive in the pipeline.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new reports Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create persists a new request in state CREATED. The report id doubles
// as the task dedupe key.
func (s *Store) Create(ctx context.Context, productCode string) (*ReportRequest, error) {
	now := s.nowFunc().UTC()
	rec := ReportRequest{
		ReportID:      uuid.NewString(),
		State:         StateCreated,
		ProductCode:   productCode,
		TaskDedupeKey: "",
		CreatedAt:     now,
		UpdatedAt:     now,
		UpdatedAtUnix: now.UnixNano(),
	}
	rec.TaskDedupeKey = rec.ReportID

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(report_id)"),
	})
	if err != nil {
		// An id collision means the freshly generated uuid already exists.
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return nil, ErrStateConflict
		}
		return nil, fmt.Errorf("put item: %w", err)
	}
	return &rec, nil
}

// Get fetches a request by report_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, reportID string) (*ReportRequest, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"report_id": &types.AttributeValueMemberS{Value: reportID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec ReportRequest
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &rec, nil
}

// Transition conditionally moves a request from expectedState to
// newState, writing the given fields in the same update. Returns
// ErrStateConflict if the stored state is not expectedState (including
// when the item does not exist).
func (s *Store) Transition(ctx context.Context, reportID, expectedState, newState string, fields TransitionFields) error {
	now := s.nowFunc().UTC()

	sets := []string{"#s = :new", "updated_at = :ua", "updated_at_unix = :uan"}
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: newState},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		":uan":      &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixNano(), 10)},
		":expected": &types.AttributeValueMemberS{Value: expectedState},
	}
	if fields.PaymentReference != "" {
		sets = append(sets, "payment_reference = :pr")
		values[":pr"] = &types.AttributeValueMemberS{Value: fields.PaymentReference}
	}
	if fields.PaymentURL != "" {
		sets = append(sets, "payment_url = :pu")
		values[":pu"] = &types.AttributeValueMemberS{Value: fields.PaymentURL}
	}
	if fields.ArtifactKey != "" {
		sets = append(sets, "artifact_key = :ak")
		values[":ak"] = &types.AttributeValueMemberS{Value: fields.ArtifactKey}
	}
	if fields.FailureReason != "" {
		sets = append(sets, "failure_reason = :fr")
		values[":fr"] = &types.AttributeValueMemberS{Value: fields.FailureReason}
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"report_id": &types.AttributeValueMemberS{Value: reportID},
		},
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  map[string]string{"#s": "state"},
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString("#s = :expected"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStateConflict
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ListStuck scans for requests sitting in the given state since before
// the cutoff. The scan Limit bounds items examined per page, not items
// matched, so pages are followed through LastEvaluatedKey until limit
// matches are collected or the table ends. The cutoff is compared
// against the numeric updated_at_unix mirror. Used by the recovery
// sweep, never on the hot path.
func (s *Store) ListStuck(ctx context.Context, state string, cutoff time.Time, limit int32) ([]ReportRequest, error) {
	input := &dyn.ScanInput{
		TableName:                &s.tableName,
		FilterExpression:         awsString("#s = :state AND updated_at_unix < :cutoff"),
		ExpressionAttributeNames: map[string]string{"#s": "state"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":state":  &types.AttributeValueMemberS{Value: state},
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff.UTC().UnixNano(), 10)},
		},
	}
	if limit > 0 {
		input.Limit = &limit
	}

	var recs []ReportRequest
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for _, item := range out.Items {
			var rec ReportRequest
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal report: %w", err)
			}
			recs = append(recs, rec)
			if limit > 0 && int32(len(recs)) >= limit {
				return recs, nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return recs, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func awsString(s string) *string { return &s }
