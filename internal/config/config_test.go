package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Reports: ReportsConfig{Table: "reports"},
		Queue:   QueueConfig{URL: "https://sqs.us-east-1.amazonaws.com/1/report-tasks.fifo"},
		S3:      S3Config{Bucket: "artifacts"},
		Payment: PaymentConfig{
			ShopID:    "shop-1",
			SecretKey: "secret",
			JWTKey:    "jwt-key",
		},
		Worker: WorkerConfig{CallbackToken: "token"},
	}
}

func TestValidateAPI(t *testing.T) {
	if err := validConfig().ValidateAPI(); err != nil {
		t.Fatalf("ValidateAPI: %v", err)
	}
}

func TestValidateAPIRejectsStandardQueue(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.URL = "https://sqs.us-east-1.amazonaws.com/1/report-tasks"

	err := cfg.ValidateAPI()
	if err == nil {
		t.Fatal("ValidateAPI accepted a non-FIFO queue URL")
	}
	if !strings.Contains(err.Error(), "FIFO") {
		t.Errorf("error = %v, want a FIFO requirement", err)
	}
}

func TestValidateAPIMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"table", func(c *Config) { c.Reports.Table = "" }},
		{"queue", func(c *Config) { c.Queue.URL = "" }},
		{"bucket", func(c *Config) { c.S3.Bucket = "" }},
		{"shop id", func(c *Config) { c.Payment.ShopID = "" }},
		{"secret", func(c *Config) { c.Payment.SecretKey = "" }},
		{"jwt key", func(c *Config) { c.Payment.JWTKey = "" }},
		{"callback token", func(c *Config) { c.Worker.CallbackToken = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.ValidateAPI(); err == nil {
				t.Fatal("ValidateAPI accepted incomplete config")
			}
		})
	}
}

func TestValidateSweeper(t *testing.T) {
	if err := validConfig().ValidateSweeper(); err != nil {
		t.Fatalf("ValidateSweeper: %v", err)
	}

	cfg := validConfig()
	cfg.Queue.URL = "https://sqs.us-east-1.amazonaws.com/1/report-tasks"
	if err := cfg.ValidateSweeper(); err == nil {
		t.Fatal("ValidateSweeper accepted a non-FIFO queue URL")
	}
}
