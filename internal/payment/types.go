package payment

// Outcome is the normalized result of a provider notification.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// Provider notification event types we understand.
const (
	eventPaymentSucceeded = "payment.succeeded"
	eventPaymentCanceled  = "payment.canceled"
)

// Event is a verified, normalized payment notification. Everything
// provider-shaped stays behind the adapter; the orchestrator only ever
// sees this.
type Event struct {
	ReportID         string
	PaymentReference string
	Outcome          Outcome
	Reason           string // cancellation reason, failure outcomes only
}

// Intent is the result of creating a payment at the provider.
type Intent struct {
	PaymentID       string
	ConfirmationURL string
}

// Amount is a provider-facing money value.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Wire shapes, provider side.

type intentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

type notificationBody struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID       string `json:"id"`
		Metadata struct {
			ReportID string `json:"report_id"`
			Token    string `json:"token"`
		} `json:"metadata"`
		CancellationDetails struct {
			Reason string `json:"reason"`
		} `json:"cancellation_details"`
	} `json:"object"`
}
