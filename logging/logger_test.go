package logging

import (
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context"
	"testing"
)

func TestNewLoggerVerbosity(t *testing.T) {
	logger, err := NewLogger(false, DEFAULT)
	require.NoError(t, err)
	assert.True(t, logger.V(DEFAULT).Enabled())
	assert.False(t, logger.V(DEBUG).Enabled())

	logger, err = NewLogger(true, DEBUG)
	require.NoError(t, err)
	assert.True(t, logger.V(DEBUG).Enabled())
	assert.False(t, logger.V(TRACE).Enabled())
}

func TestContextRoundTrip(t *testing.T) {
	logger := NewTestLogger().WithName("ctx")
	ctx := IntoContext(context.Background(), logger)
	assert.Equal(t, logger, FromContext(ctx, logr.Discard()))
	assert.Equal(t, logr.Discard(), FromContext(context.Background(), logr.Discard()))
}
