// Package config holds the explicit runtime configuration for the payout
// engine. Everything that used to be a magic constant (fee rate, batch
// size, transfer ceilings, cooldown) lives here and is passed into the
// services at construction time.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Port the HTTP server listens on.
	Port string

	// DBPath is the SQLite database path. ":memory:" is accepted.
	DBPath string

	// ProcessorBaseURL is the payout processor's API endpoint.
	ProcessorBaseURL string

	// ProcessorAPIKey authenticates outbound processor calls.
	ProcessorAPIKey string

	// FeeBasisPoints is the platform fee charged per balance, in basis
	// points of the balance amount. 490 = 4.9%.
	FeeBasisPoints int64

	// BatchSize is how many payees one dispatch unit covers. 240 keeps a
	// batch under the processor's per-call rate limit.
	BatchSize int

	// BatchStagger is the delay added per batch index so batches do not
	// burst the processor's rate limiter.
	BatchStagger time.Duration

	// MaxSingleTransferCents is the processor's per-transfer ceiling.
	// Payments above it are split into multiple sub-transfers.
	MaxSingleTransferCents int64

	// PayoutCooldown is the minimum wait after a completed payout before
	// the payee is payable again.
	PayoutCooldown time.Duration

	// PendingPollInterval is how often the reconciliation poller re-checks
	// transfers stuck in processing.
	PendingPollInterval time.Duration

	// PendingPollWorkers bounds concurrent processor lookups in the poller.
	PendingPollWorkers int
}

// Load reads configuration from the environment, falling back to defaults
// suitable for local development.
func Load() Config {
	return Config{
		Port:                   getEnv("PORT", "8080"),
		DBPath:                 getEnv("DB_PATH", "payouts.db"),
		ProcessorBaseURL:       getEnv("PROCESSOR_BASE_URL", "https://api.masspay.example.com"),
		ProcessorAPIKey:        getEnv("PROCESSOR_API_KEY", ""),
		FeeBasisPoints:         getEnvInt64("FEE_BASIS_POINTS", 490),
		BatchSize:              int(getEnvInt64("DISPATCH_BATCH_SIZE", 240)),
		BatchStagger:           getEnvDuration("DISPATCH_BATCH_STAGGER", time.Minute),
		MaxSingleTransferCents: getEnvInt64("MAX_SINGLE_TRANSFER_CENTS", 1_000_000),
		PayoutCooldown:         getEnvDuration("PAYOUT_COOLDOWN", 7*24*time.Hour),
		PendingPollInterval:    getEnvDuration("PENDING_POLL_INTERVAL", 15*time.Minute),
		PendingPollWorkers:     int(getEnvInt64("PENDING_POLL_WORKERS", 4)),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
