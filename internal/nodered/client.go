package nodered

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProbeCommand is posted by Probe to check that the flow answers.
const ProbeCommand = "/test"

const maxBodyBytes = 1 << 20

// Client posts command text to a Node-RED HTTP-in endpoint.
type Client struct {
	url    string
	client *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithTimeout overrides the default request timeout. Each client owns its
// http.Client, so the setting never leaks to another client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// NewClient constructs a Node-RED client for a fixed endpoint.
func NewClient(url string, opts ...Option) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("nodered: empty url")
	}
	c := &Client{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the configured URL.
func (c *Client) Endpoint() string {
	if c == nil {
		return ""
	}
	return c.url
}

// Response is the raw reply of the flow.
type Response struct {
	StatusCode int
	Body       string
}

// StatusError is returned when the endpoint answers with a status other than 200.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("nodered: http %d", e.StatusCode)
	}
	return fmt.Sprintf("nodered: http %d: %s", e.StatusCode, e.Body)
}

type commandPayload struct {
	Content string `json:"content"`
}

// Send posts {"content": text}. Only HTTP 200 counts as success; any other status
// yields a *StatusError carrying the reply body. Transport failures are returned wrapped.
func (c *Client) Send(ctx context.Context, text string) (Response, error) {
	if c == nil || c.client == nil {
		return Response{}, errors.New("nodered: nil client")
	}
	body, err := json.Marshal(commandPayload{Content: text})
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("nodered: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("nodered: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, fmt.Errorf("nodered: read body: %w", err)
	}
	out := Response{StatusCode: resp.StatusCode, Body: string(raw)}
	if resp.StatusCode != http.StatusOK {
		return out, &StatusError{StatusCode: resp.StatusCode, Body: out.Body}
	}
	return out, nil
}

// Probe posts ProbeCommand and returns the status code. Unlike Send, any status is
// a successful probe; only transport failures return an error.
func (c *Client) Probe(ctx context.Context) (int, error) {
	resp, err := c.Send(ctx, ProbeCommand)
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}
