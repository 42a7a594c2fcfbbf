package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewZapLoggerLevels(t *testing.T) {
	log, err := NewZapLogger(ZapLoggerConfig{Level: "warn", Encoding: "console"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNewZapLoggerFallsBackToInfo(t *testing.T) {
	log, err := NewZapLogger(ZapLoggerConfig{Level: "loud", Encoding: "xml"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}
