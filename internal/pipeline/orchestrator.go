package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reportsvc/go-report-pipeline/internal/metrics"
	"github.com/reportsvc/go-report-pipeline/internal/payment"
	"github.com/reportsvc/go-report-pipeline/internal/pricing"
	"github.com/reportsvc/go-report-pipeline/internal/reports"
	"github.com/reportsvc/go-report-pipeline/internal/storage"
)

var (
	// ErrNotFound indicates an unknown report id.
	ErrNotFound = errors.New("report not found")

	// ErrAlreadyPaid indicates an intent confirmation for a request that
	// moved past payment.
	ErrAlreadyPaid = errors.New("report already paid")
)

// Worker result outcomes accepted on the completion callback.
const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// RecordStore is the durable, authoritative record of report requests.
type RecordStore interface {
	Create(ctx context.Context, productCode string) (*reports.ReportRequest, error)
	Get(ctx context.Context, reportID string) (*reports.ReportRequest, error)
	Transition(ctx context.Context, reportID, expectedState, newState string, fields reports.TransitionFields) error
	ListStuck(ctx context.Context, state string, cutoff time.Time, limit int32) ([]reports.ReportRequest, error)
}

// PaymentGateway creates intents at the external payment provider.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, reportID string, amount payment.Amount, description string) (*payment.Intent, error)
}

// TaskDispatcher publishes generation tasks to the queue.
type TaskDispatcher interface {
	Enqueue(ctx context.Context, reportID, dedupeKey, productCode string) error
}

// ArtifactStore stores finished artifacts and signs download references.
type ArtifactStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// WorkerResult is a normalized completion callback payload.
type WorkerResult struct {
	Outcome     string
	Artifact    []byte
	ContentType string
	Message     string
}

// ReportView is what clients see when polling a request. Failure detail
// stays internal; the view only carries a generic failed flag.
type ReportView struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	ProductCode string    `json:"product_code"`
	Failed      bool      `json:"failed"`
	ArtifactURL string    `json:"artifact_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Orchestrator drives report requests through the pipeline. All
// cross-request coordination happens through the store's conditional
// Transition; a state conflict means another delivery of the same event
// already won, and is swallowed.
type Orchestrator struct {
	store       RecordStore
	payments    PaymentGateway
	dispatcher  TaskDispatcher
	artifacts   ArtifactStore
	pricing     *pricing.Registry
	metrics     *metrics.Recorder
	logger      *zap.Logger
	currency    string
	downloadTTL time.Duration
}

// Config groups the orchestrator's dependencies.
type Config struct {
	Store       RecordStore
	Payments    PaymentGateway
	Dispatcher  TaskDispatcher
	Artifacts   ArtifactStore
	Pricing     *pricing.Registry
	Metrics     *metrics.Recorder
	Logger      *zap.Logger
	Currency    string
	DownloadTTL time.Duration
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.DownloadTTL == 0 {
		cfg.DownloadTTL = 15 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "RUB"
	}
	return &Orchestrator{
		store:       cfg.Store,
		payments:    cfg.Payments,
		dispatcher:  cfg.Dispatcher,
		artifacts:   cfg.Artifacts,
		pricing:     cfg.Pricing,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		currency:    cfg.Currency,
		downloadTTL: cfg.DownloadTTL,
	}
}

// CreateReport registers a new request in state CREATED.
func (o *Orchestrator) CreateReport(ctx context.Context, productCode string) (*reports.ReportRequest, error) {
	if _, ok := o.pricing.Product(productCode); !ok {
		return nil, fmt.Errorf("%w: %q", pricing.ErrUnknownProduct, productCode)
	}
	rec, err := o.store.Create(ctx, productCode)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	o.metrics.CountTransition(ctx, rec.State)
	o.logger.Info("report created",
		zap.String("report_id", rec.ReportID),
		zap.String("product_code", productCode),
	)
	return rec, nil
}

// ConfirmIntent creates a payment intent for a CREATED request and moves
// it to PAYMENT_PENDING, returning the provider's redirect URL. Repeated
// confirms while PAYMENT_PENDING return the stored URL; later states
// yield ErrAlreadyPaid. The intent is created at the provider before the
// record advances, so a crash in between leaves the request retryable.
func (o *Orchestrator) ConfirmIntent(ctx context.Context, reportID, promo string) (string, error) {
	rec, err := o.store.Get(ctx, reportID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", ErrNotFound
	}

	switch rec.State {
	case reports.StateCreated:
		// fall through to intent creation
	case reports.StatePaymentPending:
		return rec.PaymentURL, nil
	default:
		return "", ErrAlreadyPaid
	}

	quote, err := o.pricing.Quote(rec.ProductCode, promo)
	if err != nil {
		return "", err
	}
	product, _ := o.pricing.Product(rec.ProductCode)

	intent, err := o.payments.CreateIntent(ctx, rec.ReportID, payment.Amount{
		Value:    fmt.Sprintf("%.2f", quote.FinalPrice),
		Currency: o.currency,
	}, fmt.Sprintf("%s %s", product.Title, rec.ReportID))
	if err != nil {
		return "", err
	}

	err = o.store.Transition(ctx, rec.ReportID, reports.StateCreated, reports.StatePaymentPending, reports.TransitionFields{
		PaymentReference: intent.PaymentID,
		PaymentURL:       intent.ConfirmationURL,
	})
	if errors.Is(err, reports.ErrStateConflict) {
		// Concurrent confirm won the race; surface whatever it stored.
		current, gerr := o.store.Get(ctx, rec.ReportID)
		if gerr != nil {
			return "", gerr
		}
		if current != nil && current.State == reports.StatePaymentPending {
			return current.PaymentURL, nil
		}
		return "", ErrAlreadyPaid
	}
	if err != nil {
		return "", err
	}

	o.metrics.CountTransition(ctx, reports.StatePaymentPending)
	o.logger.Info("payment pending",
		zap.String("report_id", rec.ReportID),
		zap.String("payment_reference", intent.PaymentID),
	)
	return intent.ConfirmationURL, nil
}

// OnPaymentEvent applies a verified payment notification. A SUCCESS
// moves PAYMENT_PENDING -> PAID and immediately dispatches the
// generation task (PAID -> QUEUED); a dispatch failure leaves the record
// in PAID for the recovery sweep. Duplicate notifications are no-ops.
func (o *Orchestrator) OnPaymentEvent(ctx context.Context, ev *payment.Event) error {
	rec, err := o.store.Get(ctx, ev.ReportID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}

	switch ev.Outcome {
	case payment.OutcomeFailure:
		err := o.store.Transition(ctx, rec.ReportID, reports.StatePaymentPending, reports.StatePaymentFailed, reports.TransitionFields{
			FailureReason: fmt.Sprintf("payment canceled: %s", ev.Reason),
		})
		if errors.Is(err, reports.ErrStateConflict) {
			o.logger.Info("duplicate payment failure ignored", zap.String("report_id", rec.ReportID))
			return nil
		}
		if err != nil {
			return err
		}
		o.metrics.CountTransition(ctx, reports.StatePaymentFailed)
		o.logger.Info("payment failed",
			zap.String("report_id", rec.ReportID),
			zap.String("reason", ev.Reason),
		)
		return nil

	case payment.OutcomeSuccess:
		err := o.store.Transition(ctx, rec.ReportID, reports.StatePaymentPending, reports.StatePaid, reports.TransitionFields{})
		if errors.Is(err, reports.ErrStateConflict) {
			// Either a duplicate delivery (already QUEUED or beyond) or a
			// crash after PAID but before dispatch. Re-read and only
			// resume dispatch in the latter case.
			current, gerr := o.store.Get(ctx, rec.ReportID)
			if gerr != nil {
				return gerr
			}
			if current == nil || current.State != reports.StatePaid {
				o.logger.Info("duplicate payment success ignored", zap.String("report_id", rec.ReportID))
				return nil
			}
		} else if err != nil {
			return err
		} else {
			o.metrics.CountTransition(ctx, reports.StatePaid)
			o.logger.Info("payment confirmed", zap.String("report_id", rec.ReportID))
		}
		return o.dispatchPaid(ctx, rec)

	default:
		return fmt.Errorf("unknown payment outcome: %q", ev.Outcome)
	}
}

// dispatchPaid enqueues the generation task for a PAID request and
// advances it to QUEUED. The dedupe key makes a repeated enqueue
// harmless, and the conditional transition makes a racing dispatcher a
// no-op.
func (o *Orchestrator) dispatchPaid(ctx context.Context, rec *reports.ReportRequest) error {
	if err := o.dispatcher.Enqueue(ctx, rec.ReportID, rec.TaskDedupeKey, rec.ProductCode); err != nil {
		return fmt.Errorf("enqueue generation task: %w", err)
	}
	err := o.store.Transition(ctx, rec.ReportID, reports.StatePaid, reports.StateQueued, reports.TransitionFields{})
	if errors.Is(err, reports.ErrStateConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	o.metrics.CountTransition(ctx, reports.StateQueued)
	o.logger.Info("generation task queued", zap.String("report_id", rec.ReportID))
	return nil
}

// OnWorkerStarted applies the optional worker "started" signal.
func (o *Orchestrator) OnWorkerStarted(ctx context.Context, reportID string) error {
	rec, err := o.store.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	err = o.store.Transition(ctx, reportID, reports.StateQueued, reports.StateProcessing, reports.TransitionFields{})
	if errors.Is(err, reports.ErrStateConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	o.metrics.CountTransition(ctx, reports.StateProcessing)
	return nil
}

// OnWorkerResult applies a completion callback. The artifact is stored
// before the record advances; a second completion for an already
// terminal request discards its payload without touching storage.
func (o *Orchestrator) OnWorkerResult(ctx context.Context, reportID string, res WorkerResult) error {
	rec, err := o.store.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	if rec.State != reports.StateQueued && rec.State != reports.StateProcessing {
		o.logger.Info("worker result ignored",
			zap.String("report_id", reportID),
			zap.String("state", rec.State),
		)
		return nil
	}

	switch res.Outcome {
	case OutcomeCompleted:
		key := storage.ArtifactKey(reportID)
		contentType := res.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := o.artifacts.Put(ctx, key, res.Artifact, contentType); err != nil {
			return fmt.Errorf("store artifact: %w", err)
		}
		err := o.store.Transition(ctx, reportID, rec.State, reports.StateCompleted, reports.TransitionFields{
			ArtifactKey: key,
		})
		if errors.Is(err, reports.ErrStateConflict) {
			o.logger.Info("duplicate completion ignored", zap.String("report_id", reportID))
			return nil
		}
		if err != nil {
			return err
		}
		o.metrics.CountTransition(ctx, reports.StateCompleted)
		o.logger.Info("report completed", zap.String("report_id", reportID))
		return nil

	case OutcomeFailed:
		err := o.store.Transition(ctx, reportID, rec.State, reports.StateFailed, reports.TransitionFields{
			FailureReason: res.Message,
		})
		if errors.Is(err, reports.ErrStateConflict) {
			o.logger.Info("duplicate failure ignored", zap.String("report_id", reportID))
			return nil
		}
		if err != nil {
			return err
		}
		o.metrics.CountTransition(ctx, reports.StateFailed)
		o.logger.Info("report generation failed",
			zap.String("report_id", reportID),
			zap.String("reason", res.Message),
		)
		return nil

	default:
		return fmt.Errorf("unknown worker outcome: %q", res.Outcome)
	}
}

// GetReport returns the client-facing view of a request, including a
// presigned download URL once the artifact is available.
func (o *Orchestrator) GetReport(ctx context.Context, reportID string) (*ReportView, error) {
	rec, err := o.store.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	view := &ReportView{
		ID:          rec.ReportID,
		State:       rec.State,
		ProductCode: rec.ProductCode,
		Failed:      rec.State == reports.StateFailed || rec.State == reports.StatePaymentFailed,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.State == reports.StateCompleted && rec.ArtifactKey != "" {
		url, err := o.artifacts.SignedDownloadURL(ctx, rec.ArtifactKey, o.downloadTTL)
		if err != nil {
			return nil, fmt.Errorf("sign download url: %w", err)
		}
		view.ArtifactURL = url
	}
	return view, nil
}

// Quote prices a product with an optional promocode.
func (o *Orchestrator) Quote(ctx context.Context, reportID, promo string) (*pricing.Quote, error) {
	rec, err := o.store.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	quote, err := o.pricing.Quote(rec.ProductCode, promo)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}
