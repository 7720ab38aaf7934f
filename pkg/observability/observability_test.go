package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledProviderIsNoOp(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	// All recording paths must be safe without initialized instruments.
	p.RecordSubmission(ctx, "execute-transfer")
	p.RecordBlocked(ctx, "DAILY_LIMIT_EXCEEDED")
	p.RecordOverride(ctx, "approved")

	opCtx, done := p.TrackOperation(ctx, "execute-transfer")
	require.NotNil(t, opCtx)
	done(errors.New("boom"))

	require.NoError(t, p.Shutdown(ctx))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "vaultguard-client", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.True(t, cfg.Enabled)
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"DEBUG", "info", "WARN", "error", "unknown"} {
		log := NewLogger(level)
		require.NotNil(t, log)
	}

	// Debug logger emits debug records; info logger does not.
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Debug("hidden")
	assert.Empty(t, buf.String())
	log.Info("shown", "vault", "abcd")
	assert.Contains(t, buf.String(), "shown")
}
