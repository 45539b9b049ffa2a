package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Reports ReportsConfig
	Queue   QueueConfig
	S3      S3Config
	Payment PaymentConfig
	Worker  WorkerConfig
	Pricing PricingConfig
	Sweep   SweepConfig
}

// ReportsConfig holds the report record store settings.
type ReportsConfig struct {
	Table          string
	DownloadURLTTL time.Duration
}

// QueueConfig holds the generation task queue settings.
type QueueConfig struct {
	URL string
}

// S3Config holds object store connection details.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional: for S3-compatible services like MinIO
}

// PaymentConfig holds payment provider credentials.
type PaymentConfig struct {
	CreatePaymentURL string
	ShopID           string
	SecretKey        string
	JWTKey           string
	ReturnURL        string
	Currency         string
}

// WorkerConfig holds the worker callback settings. The API checks the
// token on inbound results; the worker uses the base URL to post them.
type WorkerConfig struct {
	CallbackBaseURL string
	CallbackToken   string
}

// PricingConfig carries the product and promocode registries as JSON.
type PricingConfig struct {
	ProductsJSON   string
	PromocodesJSON string
}

// SweepConfig holds recovery sweep settings.
type SweepConfig struct {
	StuckAfter time.Duration
	Interval   time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	downloadTTL, err := getDuration("DOWNLOAD_URL_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	stuckAfter, err := getDuration("SWEEP_STUCK_AFTER", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := getDuration("SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Reports: ReportsConfig{
			Table:          getEnv("REPORTS_TABLE", ""),
			DownloadURLTTL: downloadTTL,
		},
		Queue: QueueConfig{
			URL: getEnv("TASKS_QUEUE_URL", ""),
		},
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""), // Optional for MinIO/custom S3
		},
		Payment: PaymentConfig{
			CreatePaymentURL: getEnv("PAYMENT_CREATE_URL", "https://api.yookassa.ru/v3/payments"),
			ShopID:           getEnv("PAYMENT_SHOP_ID", ""),
			SecretKey:        getEnv("PAYMENT_SECRET_KEY", ""),
			JWTKey:           getEnv("PAYMENT_JWT_KEY", ""),
			ReturnURL:        getEnv("PAYMENT_RETURN_URL", ""),
			Currency:         getEnv("PAYMENT_CURRENCY", "RUB"),
		},
		Worker: WorkerConfig{
			CallbackBaseURL: getEnv("WORKER_CALLBACK_BASE_URL", "http://localhost:8080"),
			CallbackToken:   getEnv("WORKER_CALLBACK_TOKEN", ""),
		},
		Pricing: PricingConfig{
			ProductsJSON:   getEnv("PRODUCTS_JSON", ""),
			PromocodesJSON: getEnv("PROMOCODES_JSON", ""),
		},
		Sweep: SweepConfig{
			StuckAfter: stuckAfter,
			Interval:   sweepInterval,
		},
	}
	return cfg, nil
}

// ValidateAPI checks the fields the API service cannot run without.
func (c *Config) ValidateAPI() error {
	if c.Reports.Table == "" {
		return fmt.Errorf("REPORTS_TABLE is required")
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if c.Payment.ShopID == "" {
		return fmt.Errorf("PAYMENT_SHOP_ID is required")
	}
	if c.Payment.SecretKey == "" {
		return fmt.Errorf("PAYMENT_SECRET_KEY is required")
	}
	if c.Payment.JWTKey == "" {
		return fmt.Errorf("PAYMENT_JWT_KEY is required")
	}
	if c.Worker.CallbackToken == "" {
		return fmt.Errorf("WORKER_CALLBACK_TOKEN is required")
	}
	return nil
}

// ValidateSweeper checks the fields the recovery sweeper cannot run
// without.
func (c *Config) ValidateSweeper() error {
	if c.Reports.Table == "" {
		return fmt.Errorf("REPORTS_TABLE is required")
	}
	return c.validateQueue()
}

// The generation queue must be FIFO: task publication relies on
// MessageDeduplicationId to stay effective-once when a send is retried
// after a crash between SendMessage and the record update.
func (c *Config) validateQueue() error {
	if c.Queue.URL == "" {
		return fmt.Errorf("TASKS_QUEUE_URL is required")
	}
	if !strings.HasSuffix(c.Queue.URL, ".fifo") {
		return fmt.Errorf("TASKS_QUEUE_URL must point at a FIFO queue (\".fifo\" suffix)")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
