package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultguard-labs/vaultguard-go/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LEDGER_URL", "")
	t.Setenv("GUARDIAN_URL", "")
	t.Setenv("JOURNAL_PATH", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("SUBMIT_MAX_ATTEMPTS", "")

	cfg := config.Load()

	assert.Contains(t, cfg.LedgerURL, "localhost")
	assert.Contains(t, cfg.GuardianURL, "localhost")
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.CacheTTL)
	assert.Equal(t, 45*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, 5, cfg.SubmitMaxAttempts)
}

// TestLoad_Overrides verifies env vars override defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LEDGER_URL", "https://node.example:8899")
	t.Setenv("GUARDIAN_URL", "https://guardian.example")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("REDIS_ADDR", "redis.example:6379")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("SUBMIT_MAX_ATTEMPTS", "3")

	cfg := config.Load()

	assert.Equal(t, "https://node.example:8899", cfg.LedgerURL)
	assert.Equal(t, "https://guardian.example", cfg.GuardianURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "redis.example:6379", cfg.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.SubmitMaxAttempts)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("SUBMIT_MAX_ATTEMPTS", "-2")

	cfg := config.Load()
	assert.Equal(t, 5*time.Second, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.SubmitMaxAttempts)
}

const validProfile = `
name: trading-agent
daily_limit: "1.5"
fee_basis_points: 50
whitelist:
  - "0202020202020202020202020202020202020202020202020202020202020202"
rules:
  - name: business-hours
    expression: "transfer.amount < 500000000"
program_version: ">= 1.2.0 < 2.0.0"
override_expiry: "1h"
`

func TestParseProfile(t *testing.T) {
	p, err := config.ParseProfile([]byte(validProfile))
	require.NoError(t, err)
	assert.Equal(t, "trading-agent", p.Name)
	assert.Equal(t, "1.5", p.DailyLimit)
	assert.Equal(t, uint16(50), p.FeeBasisPoints)
	require.Len(t, p.Rules, 1)
	assert.Equal(t, "business-hours", p.Rules[0].Name)
}

func TestParseProfileRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing daily limit": "name: x\n",
		"bad amount":          "name: x\ndaily_limit: \"1,5\"\n",
		"bad address":         "name: x\ndaily_limit: \"1\"\nwhitelist: [\"zz\"]\n",
		"fee out of range":    "name: x\ndaily_limit: \"1\"\nfee_basis_points: 20000\n",
		"rule without expr":   "name: x\ndaily_limit: \"1\"\nrules: [{name: r}]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.ParseProfile([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_trading.yaml"), []byte(validProfile), 0o600))

	profiles, err := config.LoadAllProfiles(dir)
	require.NoError(t, err)
	require.Contains(t, profiles, "trading-agent")

	_, err = config.LoadProfile(filepath.Join(dir, "profile_missing.yaml"))
	require.Error(t, err)
}
