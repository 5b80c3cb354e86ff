package notify

import "context"

// Nop discards every notification, used for --silent runs.
type Nop struct{}

func (Nop) Notify(ctx context.Context, level Level, message string, fields map[string]any) error {
	return nil
}

func (Nop) Close() {}
