// Package pubsub publishes run events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/prerender/internal/publisher"
)

// ErrTopicMissing is returned by Open when the topic does not exist.
var ErrTopicMissing = errors.New("pubsub topic does not exist")

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic  *pubsub.Topic
	client *pubsub.Client
}

// New creates a Publisher for an existing topic handle. Close stops the
// topic but leaves the client to its owner.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Open verifies topicID exists on client. The returned
// Publisher owns the client.
func Open(ctx context.Context, client *pubsub.Client, topicID string) (*Publisher, error) {
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %s: %w", topicID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicMissing, topicID)
	}
	return &Publisher{topic: topic, client: client}, nil
}

// Publish marshals the event to JSON and publishes it, waiting for the
// server to acknowledge.
func (p *Publisher) Publish(ctx context.Context, event publisher.Event) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": event.Type,
			"run_id":     event.RunID,
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client if owned.
func (p *Publisher) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
