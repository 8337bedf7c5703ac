package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise-api/internal/config"
)

func TestSetup(t *testing.T) {
	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "Info"} {
			logger, err := Setup(config.ServerConfig{LogLevel: level, LogFormat: "json"})
			require.NoError(t, err)
			assert.NotNil(t, logger)
		}
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := Setup(config.ServerConfig{LogLevel: "verbose", LogFormat: "json"})
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
		assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	})

	t.Run("console format", func(t *testing.T) {
		logger, err := Setup(config.ServerConfig{LogLevel: "info", LogFormat: "console"})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})
}

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx := WithLogger(context.Background(), logger)
		assert.Same(t, logger, FromContext(ctx))
	})

	t.Run("missing logger returns default", func(t *testing.T) {
		t.Parallel()

		assert.NotNil(t, FromContext(context.Background()))
	})

	t.Run("nil context returns default", func(t *testing.T) {
		t.Parallel()

		assert.NotNil(t, FromContext(nil)) //nolint:staticcheck // exercising nil-safety
	})
}
