// Package metrics implements the gateway's Prometheus metrics sink.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meshgate/meshgate/pkg/gateway"
)

// PrometheusSink implements gateway.MetricsSink on a Prometheus registry.
// All collectors are registered at construction; observation methods never
// fail and never block.
type PrometheusSink struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	samples         *prometheus.CounterVec
	denials         *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	activeSubs      *prometheus.GaugeVec
	queueDrops      *prometheus.CounterVec
}

// NewPrometheusSink builds the sink and registers its collectors on reg.
// Registration panics on duplicate collectors, so construct one sink per
// registry.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshgate_requests_total",
			Help: "Gateway requests by operation, agent and outcome.",
		}, []string{"operation", "agent", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meshgate_request_duration_seconds",
			Help:    "Gateway request latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshgate_samples_total",
			Help: "Samples moved through the gateway by topic and direction.",
		}, []string{"topic", "direction"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshgate_permission_denied_total",
			Help: "Permission denials by agent, topic and operation.",
		}, []string{"agent", "topic", "operation"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshgate_rate_limit_exceeded_total",
			Help: "Admission denials by agent and limit scope.",
		}, []string{"agent", "limit_type"}),
		activeSubs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meshgate_active_subscriptions",
			Help: "Currently open subscriptions per topic.",
		}, []string{"topic"}),
		queueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshgate_subscription_drops_total",
			Help: "Samples dropped from full subscription queues per topic.",
		}, []string{"topic"}),
	}

	reg.MustRegister(
		s.requests,
		s.requestDuration,
		s.samples,
		s.denials,
		s.rateLimited,
		s.activeSubs,
		s.queueDrops,
	)
	return s
}

func (s *PrometheusSink) RecordRequest(op, agent, outcome string, elapsed time.Duration) {
	s.requests.WithLabelValues(op, agent, outcome).Inc()
	s.requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (s *PrometheusSink) RecordDenial(agent, topic, op string) {
	s.denials.WithLabelValues(agent, topic, op).Inc()
}

func (s *PrometheusSink) RecordRateLimited(agent, scope string) {
	s.rateLimited.WithLabelValues(agent, scope).Inc()
}

func (s *PrometheusSink) RecordSamples(topic, direction string, count int) {
	s.samples.WithLabelValues(topic, direction).Add(float64(count))
}

func (s *PrometheusSink) RecordQueueDrop(topic string) {
	s.queueDrops.WithLabelValues(topic).Inc()
}

func (s *PrometheusSink) SubscriptionOpened(topic string) {
	s.activeSubs.WithLabelValues(topic).Inc()
}

func (s *PrometheusSink) SubscriptionClosed(topic string) {
	s.activeSubs.WithLabelValues(topic).Dec()
}

// Verify that PrometheusSink implements the sink interface at compile time
var _ gateway.MetricsSink = (*PrometheusSink)(nil)
