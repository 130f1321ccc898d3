package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// SlackChannel posts messages to a Slack incoming webhook.
type SlackChannel struct {
	url    string
	client *http.Client
}

// NewSlackChannel constructs a Slack webhook channel.
func NewSlackChannel(webhookURL string, client *http.Client) (*SlackChannel, error) {
	if webhookURL == "" {
		return nil, errors.New("slack channel: empty webhook url")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackChannel{url: webhookURL, client: client}, nil
}

// Name implements Channel.
func (s *SlackChannel) Name() string { return "slack" }

// Send posts the text; topics are rendered as a prefix since webhooks have no threads.
func (s *SlackChannel) Send(ctx context.Context, msg Message) error {
	if s == nil {
		return errors.New("slack channel: nil")
	}
	text := msg.Text
	if msg.Topic != "" {
		text = fmt.Sprintf("[%s] %s", msg.Topic, text)
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.url, s.client, &slack.WebhookMessage{Text: text}); err != nil {
		return fmt.Errorf("slack channel: %w", err)
	}
	return nil
}
