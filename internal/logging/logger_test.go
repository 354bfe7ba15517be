package logging_test

import (
	"testing"

	"github.com/septivank/battery-drain-worker/internal/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Level(t *testing.T) {
	logger, err := logging.NewLogger("battery-drain-worker", "debug")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = logging.NewLogger("battery-drain-worker", "")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := logging.NewLogger("battery-drain-worker", "loud")
	require.Error(t, err)
}
