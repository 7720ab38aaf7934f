// Package config loads runtime configuration: 12-factor environment
// variables for process wiring, plus YAML vault profiles for the
// policy surface an operator tunes per deployment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds client process configuration.
type Config struct {
	LedgerURL         string
	GuardianURL       string
	GuardianAudience  string
	JournalPath       string
	LogLevel          string
	RedisAddr         string
	CacheTTL          time.Duration
	ConfirmTimeout    time.Duration
	SubmitMaxAttempts int
}

// Load reads configuration from environment variables.
func Load() *Config {
	ledgerURL := os.Getenv("LEDGER_URL")
	if ledgerURL == "" {
		ledgerURL = "http://localhost:8899"
	}

	guardianURL := os.Getenv("GUARDIAN_URL")
	if guardianURL == "" {
		guardianURL = "http://localhost:8787"
	}

	audience := os.Getenv("GUARDIAN_AUDIENCE")
	if audience == "" {
		audience = "guardian"
	}

	journalPath := os.Getenv("JOURNAL_PATH")
	if journalPath == "" {
		journalPath = "vaultguard-journal.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	return &Config{
		LedgerURL:         ledgerURL,
		GuardianURL:       guardianURL,
		GuardianAudience:  audience,
		JournalPath:       journalPath,
		LogLevel:          logLevel,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		CacheTTL:          durationEnv("CACHE_TTL", 5*time.Second),
		ConfirmTimeout:    durationEnv("CONFIRM_TIMEOUT", 45*time.Second),
		SubmitMaxAttempts: intEnv("SUBMIT_MAX_ATTEMPTS", 5),
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
