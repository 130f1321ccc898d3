package notify

import (
	"context"

	dispatch "fincas-control/internal/dispatch/domain"
)

// Message is a rendered notification routed to a topic.
type Message struct {
	Text  string
	Topic dispatch.Topic
}

// Channel delivers rendered messages.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
