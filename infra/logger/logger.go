package logger

import corelogger "github.com/kilianp07/skylink/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component. Output format follows
// APP_ENV and verbosity follows LOG_LEVEL.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// ForVehicle derives a component logger tagged with the vehicle system id.
func ForVehicle(component string, sysID uint8) Logger {
	l := New(component)
	if sl, ok := l.(corelogger.StructuredLogger); ok {
		return sl.With(map[string]any{"sys_id": sysID})
	}
	return l
}
