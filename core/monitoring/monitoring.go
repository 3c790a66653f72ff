// Package monitoring defines the error reporting hook of the ground station.
package monitoring

import "time"

// Monitor receives failures worth alerting on.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// Recover reports a panic of the calling goroutine and re-panics.
	// It must be deferred.
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor discards everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}
