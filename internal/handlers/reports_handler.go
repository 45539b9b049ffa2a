package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reportsvc/go-report-pipeline/internal/payment"
	"github.com/reportsvc/go-report-pipeline/internal/pipeline"
	"github.com/reportsvc/go-report-pipeline/internal/pricing"
	"github.com/reportsvc/go-report-pipeline/internal/reports"
	"github.com/reportsvc/go-report-pipeline/internal/validation"
)

// CallbackTokenHeader authenticates the worker completion callback.
const CallbackTokenHeader = "X-Callback-Token"

// Pipeline is the orchestrator surface the HTTP layer needs.
type Pipeline interface {
	CreateReport(ctx context.Context, productCode string) (*reports.ReportRequest, error)
	ConfirmIntent(ctx context.Context, reportID, promo string) (string, error)
	GetReport(ctx context.Context, reportID string) (*pipeline.ReportView, error)
	Quote(ctx context.Context, reportID, promo string) (*pricing.Quote, error)
	OnPaymentEvent(ctx context.Context, ev *payment.Event) error
	OnWorkerStarted(ctx context.Context, reportID string) error
	OnWorkerResult(ctx context.Context, reportID string, res pipeline.WorkerResult) error
}

// NotificationVerifier checks inbound payment webhooks.
type NotificationVerifier interface {
	VerifyNotification(payload []byte) (*payment.Event, error)
}

// HandlerConfig groups dependencies for the report routes.
type HandlerConfig struct {
	Pipeline      Pipeline
	Verifier      NotificationVerifier
	CallbackToken string
	Logger        *zap.Logger
}

// RegisterReportRoutes registers the public API, the payment webhook and
// the worker callback.
func RegisterReportRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/reports", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateReportRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		rec, err := cfg.Pipeline.CreateReport(ctx, req.ProductCode)
		if err != nil {
			if errors.Is(err, pricing.ErrUnknownProduct) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_product_code"})
				return
			}
			cfg.Logger.Error("create report failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": rec.ReportID, "state": rec.State})
	})

	r.POST("/reports/:id/payment", func(c *gin.Context) {
		ctx := c.Request.Context()
		reportID := c.Param("id")

		confirmationURL, err := cfg.Pipeline.ConfirmIntent(ctx, reportID, c.Query("promo"))
		if err != nil {
			switch {
			case errors.Is(err, pipeline.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "report_not_found"})
			case errors.Is(err, pipeline.ErrAlreadyPaid):
				c.JSON(http.StatusConflict, gin.H{"error": "report_already_paid"})
			case errors.Is(err, payment.ErrProvider):
				cfg.Logger.Error("payment provider failed", zap.String("report_id", reportID), zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "payment_provider_unavailable"})
			default:
				cfg.Logger.Error("confirm intent failed", zap.String("report_id", reportID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "payment_failed"})
			}
			return
		}

		c.JSON(http.StatusCreated, gin.H{"confirmation_url": confirmationURL})
	})

	r.GET("/reports/:id", func(c *gin.Context) {
		view, err := cfg.Pipeline.GetReport(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, pipeline.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "report_not_found"})
				return
			}
			cfg.Logger.Error("get report failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "get_failed"})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	r.GET("/reports/:id/price", func(c *gin.Context) {
		quote, err := cfg.Pipeline.Quote(c.Request.Context(), c.Param("id"), c.Query("promo"))
		if err != nil {
			if errors.Is(err, pipeline.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "report_not_found"})
				return
			}
			cfg.Logger.Error("quote failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "quote_failed"})
			return
		}
		c.JSON(http.StatusOK, quote)
	})

	r.POST("/payment/webhook", func(c *gin.Context) {
		ctx := c.Request.Context()

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
			return
		}

		ev, err := cfg.Verifier.VerifyNotification(payload)
		if err != nil {
			switch {
			case errors.Is(err, payment.ErrInvalidSignature):
				cfg.Logger.Warn("webhook signature rejected")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
			case errors.Is(err, payment.ErrUnexpectedEvent):
				// 500 so the provider retries; we may learn the event later
				cfg.Logger.Error("webhook event not handled", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected_event"})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_notification"})
			}
			return
		}

		if err := cfg.Pipeline.OnPaymentEvent(ctx, ev); err != nil {
			// Unknown report included: the provider retries until the
			// record is visible.
			cfg.Logger.Error("payment event failed",
				zap.String("report_id", ev.ReportID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "event_not_applied"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.PUT("/internal/reports/:id/result", func(c *gin.Context) {
		ctx := c.Request.Context()
		reportID := c.Param("id")

		if c.GetHeader(CallbackTokenHeader) != cfg.CallbackToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_callback_token"})
			return
		}

		var req validation.WorkerResultRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		var err error
		if req.Outcome == pipeline.OutcomeStarted {
			err = cfg.Pipeline.OnWorkerStarted(ctx, reportID)
		} else {
			var artifact []byte
			if req.ArtifactB64 != "" {
				artifact, err = base64.StdEncoding.DecodeString(req.ArtifactB64)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_artifact_encoding"})
					return
				}
			}
			err = cfg.Pipeline.OnWorkerResult(ctx, reportID, pipeline.WorkerResult{
				Outcome:     req.Outcome,
				Artifact:    artifact,
				ContentType: req.ContentType,
				Message:     req.Message,
			})
		}
		if err != nil {
			if errors.Is(err, pipeline.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "report_not_found"})
				return
			}
			cfg.Logger.Error("worker result failed",
				zap.String("report_id", reportID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "result_not_applied"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
