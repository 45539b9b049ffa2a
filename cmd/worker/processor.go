package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// Processor consumes generation tasks and reports results back over the
// service's authenticated callback. The record store stays owned by the
// service; the worker only ever talks to it through the callback.
type Processor struct {
	callbackBaseURL string
	callbackToken   string
	client          *http.Client
	logger          *zap.Logger
}

// NewProcessor creates a worker processor.
func NewProcessor(callbackBaseURL, callbackToken string, logger *zap.Logger) *Processor {
	return &Processor{
		callbackBaseURL: callbackBaseURL,
		callbackToken:   callbackToken,
		client:          &http.Client{Timeout: 30 * time.Second},
		logger:          logger,
	}
}

// Handle receives an SQS batch event and processes each message. An
// error bubbles up so the runtime retries and eventually DLQs.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error", zap.Error(err))
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg TaskMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.ReportID == "" {
		return fmt.Errorf("message has no report_id: %s", rec.Body)
	}

	p.logger.Info("generation task received",
		zap.String("report_id", msg.ReportID),
		zap.String("product_code", msg.ProductCode),
	)

	if err := p.postResult(ctx, msg.ReportID, resultBody{Outcome: "started"}); err != nil {
		return err
	}

	artifact, err := buildArtifact(msg)
	if err != nil {
		// Report the failure; the task itself is done.
		return p.postResult(ctx, msg.ReportID, resultBody{
			Outcome: "failed",
			Message: err.Error(),
		})
	}

	return p.postResult(ctx, msg.ReportID, resultBody{
		Outcome:     "completed",
		ArtifactB64: base64.StdEncoding.EncodeToString(artifact),
		ContentType: "application/json",
	})
}

func (p *Processor) postResult(ctx context.Context, reportID string, body resultBody) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	url := fmt.Sprintf("%s/internal/reports/%s/result", p.callbackBaseURL, reportID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Callback-Token", p.callbackToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("callback rejected result: status %d: %s", resp.StatusCode, detail)
	}

	p.logger.Info("result posted",
		zap.String("report_id", reportID),
		zap.String("outcome", body.Outcome),
	)
	return nil
}

// buildArtifact produces the report content. Deterministic per report id
// so a retried completion stores identical bytes.
func buildArtifact(msg TaskMessage) ([]byte, error) {
	content := struct {
		ReportID    string `json:"report_id"`
		ProductCode string `json:"product_code"`
		Title       string `json:"title"`
	}{
		ReportID:    msg.ReportID,
		ProductCode: msg.ProductCode,
		Title:       fmt.Sprintf("Report %s", msg.ReportID),
	}
	return json.Marshal(content)
}
