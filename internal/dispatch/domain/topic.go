package dispatch

import "fmt"

// Topic selects a notification thread in the bot chat.
type Topic string

const (
	TopicDataLoss Topic = "data_loss"
	TopicManager  Topic = "manager"
	TopicReboots  Topic = "reboots"
)

// Topics lists the known notification topics.
func Topics() []Topic {
	return []Topic{TopicDataLoss, TopicManager, TopicReboots}
}

// ParseTopic validates a topic name; empty means "route by verb".
func ParseTopic(value string) (Topic, error) {
	if value == "" {
		return "", nil
	}
	for _, known := range Topics() {
		if Topic(value) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTopic, value)
}

// TopicFor returns the default topic for a verb.
func TopicFor(verb Verb) Topic {
	if verb == VerbReboot {
		return TopicReboots
	}
	return TopicManager
}
