// Package pubsub publishes crawl completion notices to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

type sendFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publisher sends JSON payloads with trace context in the attributes.
type Publisher struct {
	send  sendFunc
	close func() error
}

// Open creates a client for projectID and a publisher for topic.
func Open(ctx context.Context, projectID, topic string) (*Publisher, error) {
	if projectID == "" || topic == "" {
		return nil, errors.New("pubsub project id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := New(client.Publisher(topic))
	pub.close = func() error {
		client.Publisher(topic).Stop()
		return client.Close()
	}
	return pub, nil
}

// New wraps a topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	if publisher == nil {
		return &Publisher{}
	}
	return &Publisher{send: func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return publisher.Publish(ctx, msg).Get(ctx)
	}}
}

// Publish marshals payload and blocks until the server acknowledges it. The
// topic argument is ignored; the publisher is bound to one topic.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.send == nil {
		return "", errors.New("pubsub publisher is not configured")
	}
	msg, err := newMessage(ctx, payload)
	if err != nil {
		return "", err
	}
	id, err := p.send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	if p.close == nil {
		return nil
	}
	if err := p.close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

func newMessage(ctx context.Context, payload any) (*pubsub.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: map[string]string{}}
	if c, ok := payload.(crawler.Completion); ok {
		msg.Attributes["job_id"] = c.JobID
		msg.Attributes["status"] = string(c.Status)
	}
	otel.GetTextMapPropagator().Inject(ctx, &carrier{attrs: msg.Attributes})
	return msg, nil
}

// carrier implements propagation.TextMapCarrier over message attributes.
type carrier struct {
	attrs map[string]string
}

func (c *carrier) Get(key string) string {
	return c.attrs[key]
}

func (c *carrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *carrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
