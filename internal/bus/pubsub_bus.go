package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/architus/gateway-logs-pipeline/internal/rawframe"
)

// PubSubBus is the production Bus: publishes RawFrames to a Google Cloud
// Pub/Sub topic with per-guild ordering keys, and consumes them via a
// pull subscription. Adapted from the teacher's PubSubEventBus — same
// idempotent topic.Exists/CreateTopic declaration and EnableMessageOrdering
// pattern, repurposed from CloudEvent JSON envelopes to the compact
// rawframe binary codec, and from "fan out + forget" Emit to a
// Publisher+Subscriber pair with ack/nack semantics.
type PubSubBus struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *slog.Logger
}

// Option configures PubSubBus construction.
type Option func(*pubsubConfig)

type pubsubConfig struct {
	subscriptionID string
}

// WithSubscription sets the subscription ID used for Receive. If unset,
// Receive returns an error — a bus used only for publishing (e.g. the
// ingress side) never needs one.
func WithSubscription(subID string) Option {
	return func(c *pubsubConfig) { c.subscriptionID = subID }
}

// NewPubSubBus creates (or attaches to) a Pub/Sub topic, declaring it
// idempotently: topic.Exists is checked before CreateTopic, so repeated
// startups never error on "already exists".
func NewPubSubBus(ctx context.Context, projectID, topicID string, opts ...Option) (*PubSubBus, error) {
	cfg := pubsubConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bus: pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("bus: topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("bus: CreateTopic: %w", err)
		}
		slog.Info("bus: created pub/sub topic", "topic_id", topicID)
	}
	topic.EnableMessageOrdering = true

	b := &PubSubBus{
		client: client,
		topic:  topic,
		logger: slog.Default().With("component", "bus"),
	}

	if cfg.subscriptionID != "" {
		sub := client.Subscription(cfg.subscriptionID)
		subExists, err := sub.Exists(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("bus: subscription.Exists: %w", err)
		}
		if !subExists {
			sub, err = client.CreateSubscription(ctx, cfg.subscriptionID, pubsub.SubscriptionConfig{
				Topic:                 topic,
				EnableMessageOrdering: true,
			})
			if err != nil {
				client.Close()
				return nil, fmt.Errorf("bus: CreateSubscription: %w", err)
			}
		}
		b.sub = sub
	}

	b.logger.Info("bus: connected", "project", projectID, "topic", topicID, "subscription", cfg.subscriptionID)
	return b, nil
}

// Publish re-encodes frame with rawframe.Encode and publishes it with an
// ordering key of the guild ID, so per-guild FIFO (spec.md §5) is
// preserved while cross-guild ordering is explicitly not guaranteed.
func (b *PubSubBus) Publish(ctx context.Context, frame rawframe.Frame) error {
	payload, err := rawframe.Encode(frame)
	if err != nil {
		return fmt.Errorf("bus: encoding frame: %w", err)
	}

	msg := &pubsub.Message{
		Data:        payload,
		OrderingKey: strconv.FormatUint(frame.GuildID, 10),
		Attributes: map[string]string{
			"event_type": frame.EventType,
		},
	}

	result := b.topic.Publish(ctx, msg)
	_, err = result.Get(ctx)
	if err != nil {
		return fmt.Errorf("bus: publish ack: %w", err)
	}
	return nil
}

// ErrNoSubscription is returned by Receive when the bus wasn't configured
// with WithSubscription.
var ErrNoSubscription = fmt.Errorf("bus: no subscription configured for Receive")

// Receive pulls messages via the configured subscription and calls
// handler for each, acking on success and nacking (leaving it for
// redelivery) on failure.
func (b *PubSubBus) Receive(ctx context.Context, handler Handler) error {
	if b.sub == nil {
		return ErrNoSubscription
	}

	return b.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		frame, err := rawframe.Decode(msg.Data)
		if err != nil {
			b.logger.Warn("bus: dropping undecodable message", "error", err, "msg_id", msg.ID)
			msg.Ack() // Fatal-Drop: malformed envelope, ack + discard
			return
		}

		if err := handler(ctx, frame); err != nil {
			b.logger.Debug("bus: handler failed, nacking for redelivery", "error", err, "msg_id", msg.ID)
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close releases the topic and client.
func (b *PubSubBus) Close() error {
	b.topic.Stop()
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("bus: client close: %w", err)
	}
	return nil
}

// HealthCheck verifies the topic is reachable.
func (b *PubSubBus) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := b.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("bus: health check: %w", err)
	}
	if !exists {
		return fmt.Errorf("bus: topic does not exist")
	}
	return nil
}

var _ Bus = (*PubSubBus)(nil)
