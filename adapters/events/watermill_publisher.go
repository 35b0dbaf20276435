package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/didgate/ports"
)

// DefaultTopicPrefix is prepended to every topic name
const DefaultTopicPrefix = "didgate."

const (
	TopicIdentityRegistered = "identity.registered"
	TopicLoginSucceeded     = "login.succeeded"
	TopicLoginFailed        = "login.failed"
)

// RegisteredEvent is published when a new identity is minted
type RegisteredEvent struct {
	DID        string    `json:"did"`
	Scheme     string    `json:"scheme"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LoginSucceededEvent is published when a session token is issued
type LoginSucceededEvent struct {
	DID        string    `json:"did"`
	TokenID    string    `json:"token_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LoginFailedEvent is published when CompleteLogin rejects an attempt
type LoginFailedEvent struct {
	DID        string    `json:"did"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	prefix    string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topicPrefix string) ports.EventPublisher {
	if topicPrefix == "" {
		topicPrefix = DefaultTopicPrefix
	}
	return &WatermillPublisher{
		publisher: publisher,
		prefix:    topicPrefix,
	}
}

// Topic returns the fully qualified topic name
func (p *WatermillPublisher) Topic(name string) string {
	return p.prefix + name
}

// PublishRegistered publishes an identity registration
func (p *WatermillPublisher) PublishRegistered(ctx context.Context, did string, scheme string) error {
	return p.publish(ctx, TopicIdentityRegistered, RegisteredEvent{
		DID:        did,
		Scheme:     scheme,
		OccurredAt: time.Now().UTC(),
	})
}

// PublishLoginSucceeded publishes a successful login
func (p *WatermillPublisher) PublishLoginSucceeded(ctx context.Context, did string, tokenID string) error {
	return p.publish(ctx, TopicLoginSucceeded, LoginSucceededEvent{
		DID:        did,
		TokenID:    tokenID,
		OccurredAt: time.Now().UTC(),
	})
}

// PublishLoginFailed publishes a rejected login attempt
func (p *WatermillPublisher) PublishLoginFailed(ctx context.Context, did string, kind string) error {
	return p.publish(ctx, TopicLoginFailed, LoginFailedEvent{
		DID:        did,
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.Topic(topic), msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
