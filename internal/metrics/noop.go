package metrics

import (
	"time"

	"github.com/meshgate/meshgate/pkg/gateway"
)

// NoopSink discards every observation. Used in tests and in tools that do
// not export metrics.
type NoopSink struct{}

func (NoopSink) RecordRequest(op, agent, outcome string, elapsed time.Duration) {}
func (NoopSink) RecordDenial(agent, topic, op string)                           {}
func (NoopSink) RecordRateLimited(agent, scope string)                          {}
func (NoopSink) RecordSamples(topic, direction string, count int)               {}
func (NoopSink) RecordQueueDrop(topic string)                                   {}
func (NoopSink) SubscriptionOpened(topic string)                                {}
func (NoopSink) SubscriptionClosed(topic string)                                {}

var _ gateway.MetricsSink = NoopSink{}
