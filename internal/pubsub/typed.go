package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event[T] wraps a topic name and provides type-safe publishing.
type Event[T any] struct {
	topicName   string
	description string
}

// NewEvent creates a typed event bound to a topic.
func NewEvent[T any](name string, description string) Event[T] {
	return Event[T]{
		topicName:   name,
		description: description,
	}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topicName
}

// Description returns the human readable description of the event.
func (e Event[T]) Description() string {
	return e.description
}

// Publish sends a typed event. The compiler ensures 'payload' matches 'T'.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], source string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.Name(), err)
	}

	return p.Publish(ctx, Message{
		Topic:   event.Name(),
		Source:  source,
		Payload: data,
	})
}

// Decode unmarshals the payload of a message published for this event.
func (e Event[T]) Decode(msg Message) (T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", e.Name(), err)
	}
	return payload, nil
}
