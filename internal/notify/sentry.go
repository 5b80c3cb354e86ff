package notify

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/goran-ethernal/watch-tower/internal/logger"
)

// SentrySink reports errors and warnings to Sentry. Info-level
// notifications are dropped — Sentry is for things worth paging on,
// not routine status.
type SentrySink struct {
	log *logger.Logger
}

// NewSentrySink initializes the Sentry client with dsn and returns a
// sink, or an error if initialization fails.
func NewSentrySink(dsn string, log *logger.Logger) (*SentrySink, error) {
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		return nil, err
	}
	return &SentrySink{log: log}, nil
}

func (s *SentrySink) Notify(ctx context.Context, level Level, message string, fields map[string]any) error {
	if level == LevelInfo {
		return nil
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentryLevel(level))
		for k, v := range fields {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(errors.New(message))
	})
	return nil
}

func (s *SentrySink) Close() {
	sentry.Flush(2 * time.Second)
}

func sentryLevel(level Level) sentry.Level {
	switch level {
	case LevelError:
		return sentry.LevelError
	case LevelWarn:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
