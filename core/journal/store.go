// Package journal persists the outcome of every fleet command so operators
// can audit what was sent to which vehicle.
package journal

import (
	"context"
	"time"
)

// Outcomes recorded for a command.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeError  = "error"
)

// Record captures one command sent through the fleet coordinator.
type Record struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	SysID      uint8          `json:"sys_id"`
	Link       string         `json:"link,omitempty"`
	Kind       string         `json:"kind"`
	Params     map[string]any `json:"params,omitempty"`
	Outcome    string         `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// Query defines filters for retrieving records. Zero values match all.
type Query struct {
	Start   time.Time
	End     time.Time
	SysID   uint8
	Kind    string
	Outcome string
}

// Match reports whether r passes the filters.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.SysID != 0 && r.SysID != q.SysID {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore drops every record.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error          { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
