// Package notify implements the external notification sinks: Slack
// for operator-facing alerts, Sentry for error tracking, and a nop
// sink for --silent runs.
package notify

import (
	"context"
	"fmt"
)

// Sink is the narrow interface the rest of watch-tower notifies
// through — a reorg, a watchdog trip, or a fatal chain-watcher error
// all funnel through Notify.
type Sink interface {
	Notify(ctx context.Context, level Level, message string, fields map[string]any) error
	Close()
}

// Level mirrors zap's severity vocabulary, the notifier's lingua
// franca with the rest of watch-tower's logging (internal/logger).
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Multi fans a notification out to every configured sink, collecting
// (not short-circuiting on) the first error.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a fan-out Sink. A nil entry in sinks is skipped,
// which lets callers conditionally include Slack/Sentry without
// branching at every call site.
func NewMulti(sinks ...Sink) *Multi {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &Multi{sinks: filtered}
}

func (m *Multi) Notify(ctx context.Context, level Level, message string, fields map[string]any) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, level, message, fields); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify sink failed: %w", err)
		}
	}
	return firstErr
}

func (m *Multi) Close() {
	for _, s := range m.sinks {
		s.Close()
	}
}
