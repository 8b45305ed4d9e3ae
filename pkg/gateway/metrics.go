package gateway

import "time"

// MetricsSink receives passive observations from the request router and the
// mesh adapter. Implementations must be safe for concurrent use and must
// never block; they are called on request-handling and delivery paths.
type MetricsSink interface {
	// RecordRequest is invoked on every request completion with the
	// operation name, agent, outcome kind ("ok" or an ErrorKind string)
	// and request latency.
	RecordRequest(op, agent, outcome string, elapsed time.Duration)

	// RecordDenial counts a permission denial for audit.
	RecordDenial(agent, topic, op string)

	// RecordRateLimited counts an admission denial. Scope is "agent" or
	// "global" depending on which bucket ran dry.
	RecordRateLimited(agent, scope string)

	// RecordSamples counts samples moved through a topic.
	// Direction is "read" or "write".
	RecordSamples(topic, direction string, count int)

	// RecordQueueDrop counts a sample dropped from a full subscription
	// delivery queue.
	RecordQueueDrop(topic string)

	// SubscriptionOpened and SubscriptionClosed track the live
	// subscription gauge per topic.
	SubscriptionOpened(topic string)
	SubscriptionClosed(topic string)
}
