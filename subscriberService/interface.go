// Package subscriberService manages WebSocket bridge sessions: one broker
// subscriber per connected client.
package subscriberService

import (
	"context"

	"github.com/treebus/treebus/internals/broker"
)

// SubscriberService defines the lifecycle of the WebSocket bridge.
type SubscriberService interface {
	// Start initializes the service and prepares resources for operation.
	Start() error

	// Shutdown closes every active session and releases its broker
	// subscriber. The context can carry a deadline.
	Shutdown(ctx context.Context) error

	// Broker returns the broker the sessions attach to.
	Broker() *broker.Broker
}
