package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	EnableDBCheck bool

	// Processor tuning
	PollInterval   time.Duration
	WorkerCount    int
	ClaimBatchSize int
	TxnMaxAttempts int

	// API tuning
	RateLimit string

	// Analytics
	PosthogAPIKey   string `mapstructure:"POSTHOG_API_KEY"`
	PosthogEndpoint string `mapstructure:"POSTHOG_ENDPOINT"`
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("POLL_INTERVAL", "1s")
	viper.SetDefault("WORKER_COUNT", 4)
	viper.SetDefault("CLAIM_BATCH_SIZE", 8)
	viper.SetDefault("TXN_MAX_ATTEMPTS", 5)
	viper.SetDefault("RATE_LIMIT", "100-M")
	viper.SetDefault("POSTHOG_API_KEY", "")
	viper.SetDefault("POSTHOG_ENDPOINT", "https://eu.i.posthog.com")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}

	pollIntervalStr := viper.GetString("POLL_INTERVAL")
	pollInterval, err := time.ParseDuration(pollIntervalStr)
	if err != nil || pollInterval <= 0 {
		pollInterval = time.Second
		if pollIntervalStr != "" {
			log.Printf("Warning: Invalid value for POLL_INTERVAL ('%s'). Defaulting to %s.\n", pollIntervalStr, pollInterval.String())
		}
	}

	workerCount := viper.GetInt("WORKER_COUNT")
	if workerCount <= 0 {
		workerCount = 4
		log.Printf("Warning: Invalid WORKER_COUNT. Defaulting to %d.\n", workerCount)
	}

	claimBatchSize := viper.GetInt("CLAIM_BATCH_SIZE")
	if claimBatchSize <= 0 {
		claimBatchSize = 2 * workerCount
	}

	txnMaxAttempts := viper.GetInt("TXN_MAX_ATTEMPTS")
	if txnMaxAttempts <= 0 {
		txnMaxAttempts = 5
	}

	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")
	cfg.PollInterval = pollInterval
	cfg.WorkerCount = workerCount
	cfg.ClaimBatchSize = claimBatchSize
	cfg.TxnMaxAttempts = txnMaxAttempts
	cfg.RateLimit = viper.GetString("RATE_LIMIT")
	cfg.PosthogAPIKey = viper.GetString("POSTHOG_API_KEY")
	cfg.PosthogEndpoint = viper.GetString("POSTHOG_ENDPOINT")

	return cfg, nil
}
