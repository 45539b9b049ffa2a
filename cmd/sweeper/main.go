package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/reportsvc/go-report-pipeline/internal/aws"
	"github.com/reportsvc/go-report-pipeline/internal/config"
	"github.com/reportsvc/go-report-pipeline/internal/dispatch"
	"github.com/reportsvc/go-report-pipeline/internal/metrics"
	"github.com/reportsvc/go-report-pipeline/internal/pipeline"
	"github.com/reportsvc/go-report-pipeline/internal/reports"
)

// The sweeper redispatches requests stuck in PAID after a crash between
// the payment confirmation and the queue publish.
func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.ValidateSweeper(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	orchestrator := pipeline.New(pipeline.Config{
		Store:      reports.NewStore(clients.DynamoDB, cfg.Reports.Table),
		Dispatcher: dispatch.NewPublisher(clients.SQS, cfg.Queue.URL),
		Metrics:    metrics.NewRecorder(clients.CloudWatch, "ReportPipeline", logger),
		Logger:     logger,
	})

	sweep := func(ctx context.Context) error {
		attempted, err := orchestrator.RedispatchStuck(ctx, cfg.Sweep.StuckAfter)
		if err != nil {
			return err
		}
		logger.Info("sweep pass done", zap.Int("attempted", attempted))
		return nil
	}

	// If RUN_LOCAL=true, sweep on a ticker instead of scheduled events.
	if os.Getenv("RUN_LOCAL") == "true" {
		logger.Info("running local sweep loop",
			zap.Duration("interval", cfg.Sweep.Interval),
			zap.Duration("stuck_after", cfg.Sweep.StuckAfter),
		)
		ticker := time.NewTicker(cfg.Sweep.Interval)
		defer ticker.Stop()
		for range ticker.C {
			if err := sweep(context.Background()); err != nil {
				logger.Error("sweep pass failed", zap.Error(err))
			}
		}
		return
	}

	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) error {
		return sweep(ctx)
	})
}
