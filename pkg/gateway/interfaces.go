package gateway

import (
	"context"

	"github.com/meshgate/meshgate/pkg/schema"
)

// TopicGrants lists the topics an agent may read and write, as returned
// by ListTopics.
type TopicGrants struct {
	// Readable holds topic names the agent may read and subscribe to
	Readable []string

	// Writable holds topic names the agent may write
	Writable []string
}

// SubscriptionInfo describes one live subscription for admin views.
type SubscriptionInfo struct {
	ID      string
	Agent   string
	Topic   string
	State   string
	Queued  int
	Dropped uint64
}

// Gateway is the request-handling entry point for every operation.
//
// Every operation runs the same fixed admission pipeline: structural
// validation, then rate limiting, then authorization, then delegation to
// the mesh data plane. Failures are reported as a typed *Error; the
// outcome of every call, success or not, is recorded to the MetricsSink.
type Gateway interface {
	// Read drains up to maxSamples buffered samples from the topic in
	// arrival order. Consumed samples are not re-delivered on later reads.
	// Returns an empty slice, not an error, when nothing is buffered.
	Read(ctx context.Context, agent, topic string, maxSamples int) ([]Record, error)

	// Write validates the record against the topic schema and publishes it.
	// A write either fully succeeds or fails as a whole.
	Write(ctx context.Context, agent, topic string, record Record) error

	// Subscribe registers the agent for asynchronous delivery of the
	// topic's incoming samples and returns the subscription ID.
	Subscribe(ctx context.Context, agent, topic string) (string, error)

	// Unsubscribe closes the subscription. Closing an already closed
	// subscription is a no-op; CLOSED is terminal.
	Unsubscribe(ctx context.Context, agent, subscriptionID string) error

	// PollSubscription drains up to maxSamples buffered samples from the
	// subscription's delivery queue, FIFO, without blocking.
	PollSubscription(ctx context.Context, agent, subscriptionID string, maxSamples int) ([]Record, error)

	// ListTopics returns the topics visible to the agent.
	ListTopics(ctx context.Context, agent string) (TopicGrants, error)

	// TopicInfo returns the schema descriptor for a topic the agent can
	// see (read or write grant).
	TopicInfo(ctx context.Context, agent, topic string) (*schema.TopicDescriptor, error)

	// AgentDisconnected is the lifecycle hook invoked by the surrounding
	// process when an agent goes away; it closes every subscription the
	// agent owns.
	AgentDisconnected(ctx context.Context, agent string) error
}
