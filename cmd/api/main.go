package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reportsvc/go-report-pipeline/internal/aws"
	"github.com/reportsvc/go-report-pipeline/internal/config"
	"github.com/reportsvc/go-report-pipeline/internal/dispatch"
	"github.com/reportsvc/go-report-pipeline/internal/handlers"
	"github.com/reportsvc/go-report-pipeline/internal/metrics"
	"github.com/reportsvc/go-report-pipeline/internal/payment"
	"github.com/reportsvc/go-report-pipeline/internal/pipeline"
	"github.com/reportsvc/go-report-pipeline/internal/pricing"
	"github.com/reportsvc/go-report-pipeline/internal/reports"
	"github.com/reportsvc/go-report-pipeline/internal/storage"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterReportRoutes(r, cfg)

	return r
}

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
	if err := cfg.ValidateAPI(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	artifacts, err := storage.NewGateway(&cfg.S3)
	if err != nil {
		logger.Fatal("failed to init storage gateway", zap.Error(err))
	}

	registry, err := pricing.NewRegistryFromJSON(cfg.Pricing.ProductsJSON, cfg.Pricing.PromocodesJSON)
	if err != nil {
		logger.Fatal("failed to load pricing registry", zap.Error(err))
	}

	adapter := payment.NewAdapter(payment.Config{
		CreatePaymentURL: cfg.Payment.CreatePaymentURL,
		ShopID:           cfg.Payment.ShopID,
		SecretKey:        cfg.Payment.SecretKey,
		ReturnURL:        cfg.Payment.ReturnURL,
		JWTKey:           cfg.Payment.JWTKey,
		Currency:         cfg.Payment.Currency,
	}, logger)

	orchestrator := pipeline.New(pipeline.Config{
		Store:       reports.NewStore(clients.DynamoDB, cfg.Reports.Table),
		Payments:    adapter,
		Dispatcher:  dispatch.NewPublisher(clients.SQS, cfg.Queue.URL),
		Artifacts:   artifacts,
		Pricing:     registry,
		Metrics:     metrics.NewRecorder(clients.CloudWatch, "ReportPipeline", logger),
		Logger:      logger,
		Currency:    cfg.Payment.Currency,
		DownloadTTL: cfg.Reports.DownloadURLTTL,
	})

	r := setupRouter(handlers.HandlerConfig{
		Pipeline:      orchestrator,
		Verifier:      adapter,
		CallbackToken: cfg.Worker.CallbackToken,
		Logger:        logger,
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapterProxy := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapterProxy.ProxyWithContext(ctx, req)
	})
}
