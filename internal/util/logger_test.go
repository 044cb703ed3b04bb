package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger("debug", format, "lorafall-test")
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "debug enabled for %s", format)
	}

	logger, err := NewLogger("bogus", "json", "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
