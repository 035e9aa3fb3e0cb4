package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/ports"
)

const (
	// SessionTopic carries session state transitions
	SessionTopic = "moduls.session"

	// LogoutTopic carries tokens revoked by the dev API
	LogoutTopic = "moduls.logout"
)

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishSession publishes a session transition
func (p *WatermillPublisher) PublishSession(ctx context.Context, event core.SessionEvent) error {
	return p.publish(ctx, SessionTopic, event)
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, tokenID string) error {
	return p.publish(ctx, LogoutTopic, LogoutEvent{Address: address, TokenID: tokenID})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// DecodeSession reads a session event from a message payload
func DecodeSession(msg *message.Message) (core.SessionEvent, error) {
	var event core.SessionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return core.SessionEvent{}, fmt.Errorf("failed to decode session event: %w", err)
	}
	return event, nil
}
