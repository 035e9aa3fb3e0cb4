package ports

import (
	"context"

	"github.com/layer-3/moduls/core"
)

// EventPublisher publishes session events to interested listeners
type EventPublisher interface {
	PublishSession(ctx context.Context, event core.SessionEvent) error
}

// LogoutPublisher notifies other instances that a token was revoked
type LogoutPublisher interface {
	PublishLogout(ctx context.Context, address string, tokenID string) error
}
