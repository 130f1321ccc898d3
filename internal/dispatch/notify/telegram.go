package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	dispatch "fincas-control/internal/dispatch/domain"
)

// DefaultTelegramAPI is the public Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramChannel posts messages through the Bot API sendMessage method.
type TelegramChannel struct {
	apiBase string
	token   string
	chatID  string
	threads map[dispatch.Topic]string
	client  *http.Client
}

// TelegramOption configures the Telegram channel.
type TelegramOption func(*TelegramChannel)

// WithTelegramAPI overrides the Bot API base URL.
func WithTelegramAPI(base string) TelegramOption {
	return func(ch *TelegramChannel) {
		if base != "" {
			ch.apiBase = strings.TrimRight(base, "/")
		}
	}
}

// WithTopicThread maps a topic to a forum thread id.
func WithTopicThread(topic dispatch.Topic, threadID string) TelegramOption {
	return func(ch *TelegramChannel) {
		if threadID != "" {
			ch.threads[topic] = threadID
		}
	}
}

// WithTelegramHTTPClient overrides the HTTP client.
func WithTelegramHTTPClient(client *http.Client) TelegramOption {
	return func(ch *TelegramChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// NewTelegramChannel constructs a Telegram channel.
func NewTelegramChannel(token, chatID string, opts ...TelegramOption) (*TelegramChannel, error) {
	if token == "" {
		return nil, errors.New("telegram channel: empty token")
	}
	if chatID == "" {
		return nil, errors.New("telegram channel: empty chat id")
	}
	ch := &TelegramChannel{
		apiBase: DefaultTelegramAPI,
		token:   token,
		chatID:  chatID,
		threads: make(map[dispatch.Topic]string),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch, nil
}

// Name implements Channel.
func (t *TelegramChannel) Name() string { return "telegram" }

// Send posts a form-encoded sendMessage request. A topic without a configured
// thread goes to the main chat.
func (t *TelegramChannel) Send(ctx context.Context, msg Message) error {
	if t == nil {
		return errors.New("telegram channel: nil")
	}
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", msg.Text)
	if thread, ok := t.threads[msg.Topic]; ok {
		form.Set("message_thread_id", thread)
	}

	endpoint := t.apiBase + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.New("telegram channel: build request failed")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.client.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the bot token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return fmt.Errorf("telegram channel: %w", urlErr.Err)
		}
		return fmt.Errorf("telegram channel: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram channel: http %d", resp.StatusCode)
	}
	return nil
}
