package notify

import (
	"context"
	"errors"
	"fmt"

	dispatch "fincas-control/internal/dispatch/domain"
	"fincas-control/internal/observability/metrics"
)

// Mirror renders a command and forwards it to every configured channel.
type Mirror struct {
	channels []Channel
	template *Template
}

// NewMirror constructs a Mirror. A nil template uses DefaultTemplate.
func NewMirror(template *Template, channels ...Channel) (*Mirror, error) {
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	var active []Channel
	for _, ch := range channels {
		if ch != nil {
			active = append(active, ch)
		}
	}
	if len(active) == 0 {
		return nil, errors.New("notify mirror: no channels")
	}
	return &Mirror{channels: active, template: template}, nil
}

// Channels returns the names of the configured channels.
func (m *Mirror) Channels() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Notify sends the command text to all channels, one after another. Every channel
// is attempted; the returned error joins the individual failures.
func (m *Mirror) Notify(ctx context.Context, cmd dispatch.Command, topic dispatch.Topic) error {
	if m == nil {
		return errors.New("notify mirror: nil")
	}
	if topic == "" {
		topic = dispatch.TopicFor(cmd.Verb)
	}
	text, err := m.template.Render(TemplateData{
		Command: cmd.Text(),
		Verb:    string(cmd.Verb),
		Site:    string(cmd.Site),
		Extra:   cmd.Extra,
		Topic:   string(topic),
	})
	if err != nil {
		return fmt.Errorf("notify mirror: render: %w", err)
	}
	msg := Message{Text: text, Topic: topic}

	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(ctx, msg); err != nil {
			metrics.IncNotify(ch.Name(), metrics.ResultError)
			errs = append(errs, err)
			continue
		}
		metrics.IncNotify(ch.Name(), metrics.ResultSuccess)
	}
	return errors.Join(errs...)
}
