package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSignature means the notification's metadata token did not
	// verify against our key. Forged or corrupt webhooks land here and
	// must never produce an Event.
	ErrInvalidSignature = errors.New("invalid notification signature")

	// ErrUnexpectedEvent means the notification verified but carries an
	// event type the pipeline does not handle.
	ErrUnexpectedEvent = errors.New("unexpected notification event")

	// ErrProvider wraps failures talking to the payment provider. The
	// caller may retry; intent creation is idempotent at the provider.
	ErrProvider = errors.New("payment provider error")
)

const providerPendingStatus = "pending"

// Config holds the provider credentials and endpoints.
type Config struct {
	CreatePaymentURL string
	ShopID           string
	SecretKey        string
	ReturnURL        string
	JWTKey           string
	Currency         string
	Timeout          time.Duration
}

// Adapter creates payment intents at the external provider and verifies
// inbound notifications. It is stateless apart from its HTTP client.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewAdapter returns an Adapter bound to the provider described by cfg.
func NewAdapter(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// CreateIntent registers a payment at the provider and returns the
// redirect URL the client must visit to pay. The Idempotence-Key is
// derived from the report id so a crash-retry cannot create a second
// charge.
func (a *Adapter) CreateIntent(ctx context.Context, reportID string, amount Amount, description string) (*Intent, error) {
	token, err := a.signMetadataToken(reportID)
	if err != nil {
		return nil, fmt.Errorf("sign metadata token: %w", err)
	}

	body := map[string]interface{}{
		"amount":      amount,
		"description": description,
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": a.cfg.ReturnURL,
		},
		"capture": true,
		"metadata": map[string]string{
			"report_id": reportID,
			"token":     token,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal intent body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.CreatePaymentURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build intent request: %w", err)
	}
	req.SetBasicAuth(a.cfg.ShopID, a.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", reportID)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: bad API status code %d: %s", ErrProvider, resp.StatusCode, respBody)
	}

	var parsed intentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	if parsed.Status != providerPendingStatus {
		return nil, fmt.Errorf("%w: not pending status returned after payment creation: %q", ErrProvider, parsed.Status)
	}
	if parsed.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("%w: no confirmation_url in API response body", ErrProvider)
	}

	a.logger.Info("payment intent created",
		zap.String("report_id", reportID),
		zap.String("payment_id", parsed.ID),
	)
	return &Intent{
		PaymentID:       parsed.ID,
		ConfirmationURL: parsed.Confirmation.ConfirmationURL,
	}, nil
}

// VerifyNotification checks the notification's metadata token and maps
// the provider event onto a normalized Event. Verification is pure: the
// same payload always yields the same Event, and deduplicating its
// effect is the orchestrator's job.
func (a *Adapter) VerifyNotification(payload []byte) (*Event, error) {
	var body notificationBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if body.Object.Metadata.ReportID == "" {
		return nil, fmt.Errorf("notification has no report_id in metadata")
	}

	if err := a.verifyMetadataToken(body.Object.Metadata.Token, body.Object.Metadata.ReportID); err != nil {
		return nil, err
	}

	ev := &Event{
		ReportID:         body.Object.Metadata.ReportID,
		PaymentReference: body.Object.ID,
	}
	switch body.Event {
	case eventPaymentSucceeded:
		ev.Outcome = OutcomeSuccess
	case eventPaymentCanceled:
		ev.Outcome = OutcomeFailure
		ev.Reason = body.Object.CancellationDetails.Reason
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedEvent, body.Event)
	}
	return ev, nil
}

func (a *Adapter) signMetadataToken(reportID string) (string, error) {
	claims := jwt.MapClaims{"report_id": reportID}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.JWTKey))
}

func (a *Adapter) verifyMetadataToken(tokenString, reportID string) error {
	if tokenString == "" {
		return ErrInvalidSignature
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.cfg.JWTKey), nil
	})
	if err != nil {
		return ErrInvalidSignature
	}
	// The token binds the notification to exactly one report. A token
	// issued for another report must not verify here, otherwise a
	// captured token could confirm payments it never covered.
	if claimed, _ := claims["report_id"].(string); claimed != reportID {
		return ErrInvalidSignature
	}
	return nil
}
