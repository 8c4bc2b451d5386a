package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewBuildsLoggerAtRequestedLevel(t *testing.T) {
	logger, err := New(true, "tsblank", "test")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "debug logger should enable debug level")

	logger, err = New(false, "tsblank", "test")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel), "production logger should not enable debug level")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
