package ports

import "context"

// EventPublisher publishes auth events to notify other components
type EventPublisher interface {
	PublishRegistered(ctx context.Context, did string, scheme string) error
	PublishLoginSucceeded(ctx context.Context, did string, tokenID string) error
	PublishLoginFailed(ctx context.Context, did string, kind string) error
}
