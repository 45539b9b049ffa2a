package reports

import "time"

// Report request lifecycle states. Transitions only ever move forward;
// COMPLETED, FAILED and PAYMENT_FAILED are terminal.
const (
	StateCreated        = "CREATED"
	StatePaymentPending = "PAYMENT_PENDING"
	StatePaid           = "PAID"
	StateQueued         = "QUEUED"
	StateProcessing     = "PROCESSING"
	StateCompleted      = "COMPLETED"
	StateFailed         = "FAILED"
	StatePaymentFailed  = "PAYMENT_FAILED"
)

// IsTerminal reports whether no further transition is defined for state.
func IsTerminal(state string) bool {
	switch state {
	case StateCompleted, StateFailed, StatePaymentFailed:
		return true
	}
	return false
}

// ReportRequest is the item stored in the reports DynamoDB table. It is
// the single source of truth for a request's position in the pipeline.
type ReportRequest struct {
	ReportID         string    `dynamodbav:"report_id"` // PK
	State            string    `dynamodbav:"state"`
	ProductCode      string    `dynamodbav:"product_code"`
	PaymentReference string    `dynamodbav:"payment_reference,omitempty"` // provider payment id, set once
	PaymentURL       string    `dynamodbav:"payment_url,omitempty"`       // provider confirmation redirect
	TaskDedupeKey    string    `dynamodbav:"task_dedupe_key"`             // queue dedupe token, = report id
	ArtifactKey      string    `dynamodbav:"artifact_key,omitempty"`      // set only entering COMPLETED
	FailureReason    string    `dynamodbav:"failure_reason,omitempty"`    // failure states only, never user-facing
	CreatedAt        time.Time `dynamodbav:"created_at"`
	UpdatedAt        time.Time `dynamodbav:"updated_at"`
	UpdatedAtUnix    int64     `dynamodbav:"updated_at_unix"` // epoch nanos mirror of updated_at, used in range filters
}

// TransitionFields carries the optional attributes written together with
// a state transition. Zero values are not written.
type TransitionFields struct {
	PaymentReference string
	PaymentURL       string
	ArtifactKey      string
	FailureReason    string
}
