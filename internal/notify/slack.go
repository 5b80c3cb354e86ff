package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/goran-ethernal/watch-tower/internal/logger"
)

// SlackSink posts alerts to a Slack incoming webhook, configured via
// --slack-webhook.
type SlackSink struct {
	webhookURL string
	log        *logger.Logger
}

// NewSlackSink builds a SlackSink targeting webhookURL.
func NewSlackSink(webhookURL string, log *logger.Logger) *SlackSink {
	return &SlackSink{webhookURL: webhookURL, log: log}
}

func (s *SlackSink) Notify(ctx context.Context, level Level, message string, fields map[string]any) error {
	attachment := slack.Attachment{
		Color: colorForLevel(level),
		Text:  message,
	}
	for k, v := range fields {
		attachment.Fields = append(attachment.Fields, slack.AttachmentField{
			Title: k,
			Value: fmt.Sprintf("%v", v),
			Short: true,
		})
	}

	payload := &slack.WebhookMessage{
		Text:        fmt.Sprintf("[%s] watch-tower", level),
		Attachments: []slack.Attachment{attachment},
	}

	if err := slack.PostWebhookContext(ctx, s.webhookURL, payload); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

func (s *SlackSink) Close() {}

func colorForLevel(level Level) string {
	switch level {
	case LevelError:
		return "danger"
	case LevelWarn:
		return "warning"
	default:
		return "good"
	}
}
