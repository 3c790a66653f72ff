package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corelogger "github.com/kilianp07/skylink/core/logger"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestForVehicleAddsFields(t *testing.T) {
	l := ForVehicle("agent", 3)
	_, ok := l.(corelogger.StructuredLogger)
	assert.True(t, ok, "derived logger keeps structured support")
	l.Infof("tagged")
}

func TestSetLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	t.Setenv("LOG_LEVEL", "")
	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	t.Setenv("LOG_LEVEL", "debug")
	require.NoError(t, SetLevel("error"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel(), "environment wins")

	assert.Error(t, SetLevel("loud"))
}
