package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
)

// Envelope wraps every published event payload.
type Envelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Publisher publishes pipeline events as JSON under <topic>/<event>.
// It connects on first use and again after the connection is lost.
type Publisher struct {
	client Client
	topic  string
	now    func() time.Time
}

// NewPublisher creates a Publisher sending through client.
func NewPublisher(client Client, baseTopic string) *Publisher {
	baseTopic = strings.TrimSuffix(strings.TrimSpace(baseTopic), "/")
	if baseTopic == "" {
		baseTopic = DefaultTopic
	}
	return &Publisher{client: client, topic: baseTopic, now: time.Now}
}

// Topic returns the topic event is published to.
func (p *Publisher) Topic(event string) string {
	return p.topic + "/" + event
}

// Publish marshals payload and publishes it for event.
func (p *Publisher) Publish(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(Envelope{Event: event, Timestamp: p.now().UTC(), Data: payload})
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("event", event).
			Context("operation", "marshal").
			Build()
	}

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return p.publishError(err, event, "connect")
		}
	}

	topic := p.Topic(event)
	if err := p.client.Publish(ctx, topic, body); err != nil {
		return p.publishError(err, event, "publish")
	}
	log.Debug("event published", logger.String("topic", topic), logger.Int("bytes", len(body)))
	return nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	p.client.Disconnect()
}

func (p *Publisher) publishError(err error, event, op string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTPublish).
		Context("event", event).
		Context("topic", p.Topic(event)).
		Context("operation", op).
		Build()
}
