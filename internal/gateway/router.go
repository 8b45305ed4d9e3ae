// Package gateway implements the request router: the entry point for every
// gateway operation.
//
// Every operation runs the same fixed, short-circuiting pipeline:
//
//	structural validation -> rate limiting -> authorization -> delegation
//
// Rate limiting is deliberately checked before authorization: unauthorized
// callers get no timing signal about which check rejected them, and
// high-volume callers are throttled before the more expensive permission
// lookup. The outcome of every request, success or failure, is recorded to
// the metrics sink with its latency.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meshgate/meshgate/internal/admission"
	"github.com/meshgate/meshgate/internal/mesh"
	"github.com/meshgate/meshgate/internal/permissions"
	"github.com/meshgate/meshgate/internal/subscriptions"
	gw "github.com/meshgate/meshgate/pkg/gateway"
	"github.com/meshgate/meshgate/pkg/schema"
)

// DefaultMaxSamplesPerRead caps a single read when the configuration does
// not override it.
const DefaultMaxSamplesPerRead = 100

// Router implements gw.Gateway over the admission, permission and data
// plane components. Safe for concurrent use; all state lives in the
// components it composes.
type Router struct {
	perms   *permissions.Store
	limiter *admission.Controller
	adapter *mesh.Adapter
	subs    *subscriptions.Registry
	schemas *schema.Registry
	metrics gw.MetricsSink
	logger  *slog.Logger
	maxRead int
}

// Option tweaks router construction.
type Option func(*Router)

// WithMaxSamplesPerRead caps the sample count of a single read request.
// Larger caller requests are clamped, not rejected.
func WithMaxSamplesPerRead(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxRead = n
		}
	}
}

// NewRouter wires a router from its components.
func NewRouter(
	perms *permissions.Store,
	limiter *admission.Controller,
	adapter *mesh.Adapter,
	subs *subscriptions.Registry,
	schemas *schema.Registry,
	metrics gw.MetricsSink,
	logger *slog.Logger,
	opts ...Option,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		perms:   perms,
		limiter: limiter,
		adapter: adapter,
		subs:    subs,
		schemas: schemas,
		metrics: metrics,
		logger:  logger,
		maxRead: DefaultMaxSamplesPerRead,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read drains up to maxSamples buffered samples from the topic.
func (r *Router) Read(ctx context.Context, agent, topic string, maxSamples int) ([]gw.Record, error) {
	const op = "read"
	start := time.Now()

	if err := r.validateAgentTopic(op, agent, topic); err != nil {
		return nil, r.finish(op, agent, start, err)
	}
	if maxSamples <= 0 {
		return nil, r.finish(op, agent, start, validationErr(op, agent, topic, "maxSamples must be positive"))
	}
	if err := r.admit(op, agent); err != nil {
		return nil, r.finish(op, agent, start, err)
	}
	if err := r.authorize(op, agent, topic, permissions.ModeRead); err != nil {
		return nil, r.finish(op, agent, start, err)
	}

	if maxSamples > r.maxRead {
		maxSamples = r.maxRead
	}

	handle, err := r.ensureTopic(op, agent, topic, ctx)
	if err != nil {
		return nil, r.finish(op, agent, start, err)
	}
	records, err := r.adapter.Read(ctx, handle, maxSamples)
	if err != nil {
		return nil, r.finish(op, agent, start, bind(err, agent))
	}
	return records, r.finish(op, agent, start, nil)
}

// Write validates the record against the topic schema and publishes it.
func (r *Router) Write(ctx context.Context, agent, topic string, record gw.Record) error {
	const op = "write"
	start := time.Now()

	if err := r.validateAgentTopic(op, agent, topic); err != nil {
		return r.finish(op, agent, start, err)
	}
	if record == nil {
		return r.finish(op, agent, start, validationErr(op, agent, topic, "record is required"))
	}
	if err := r.admit(op, agent); err != nil {
		return r.finish(op, agent, start, err)
	}
	if err := r.authorize(op, agent, topic, permissions.ModeWrite); err != nil {
		return r.finish(op, agent, start, err)
	}

	handle, err := r.ensureTopic(op, agent, topic, ctx)
	if err != nil {
		return r.finish(op, agent, start, err)
	}
	if err := r.adapter.Write(ctx, handle, record); err != nil {
		return r.finish(op, agent, start, bind(err, agent))
	}
	return r.finish(op, agent, start, nil)
}

// Subscribe registers the agent for asynchronous delivery from the topic.
// Subscribing requires the read grant.
func (r *Router) Subscribe(ctx context.Context, agent, topic string) (string, error) {
	const op = "subscribe"
	start := time.Now()

	if err := r.validateAgentTopic(op, agent, topic); err != nil {
		return "", r.finish(op, agent, start, err)
	}
	if err := r.admit(op, agent); err != nil {
		return "", r.finish(op, agent, start, err)
	}
	if err := r.authorize(op, agent, topic, permissions.ModeRead); err != nil {
		return "", r.finish(op, agent, start, err)
	}

	id, err := r.subs.Create(ctx, agent, topic)
	if err != nil {
		return "", r.finish(op, agent, start, bind(err, agent))
	}
	return id, r.finish(op, agent, start, nil)
}

// Unsubscribe closes the subscription. Only the owning agent may close it;
// closing an already closed subscription succeeds without effect.
func (r *Router) Unsubscribe(ctx context.Context, agent, subscriptionID string) error {
	const op = "unsubscribe"
	start := time.Now()

	if err := r.validateAgent(op, agent); err != nil {
		return r.finish(op, agent, start, err)
	}
	if subscriptionID == "" {
		return r.finish(op, agent, start, validationErr(op, agent, "", "subscription ID is required"))
	}
	if err := r.admit(op, agent); err != nil {
		return r.finish(op, agent, start, err)
	}
	if err := r.checkOwner(op, agent, subscriptionID); err != nil {
		return r.finish(op, agent, start, err)
	}

	if err := r.subs.Close(subscriptionID); err != nil {
		return r.finish(op, agent, start, bind(err, agent))
	}
	return r.finish(op, agent, start, nil)
}

// PollSubscription drains the subscription's delivery queue without
// blocking. Only the owning agent may poll it.
func (r *Router) PollSubscription(ctx context.Context, agent, subscriptionID string, maxSamples int) ([]gw.Record, error) {
	const op = "poll_subscription"
	start := time.Now()

	if err := r.validateAgent(op, agent); err != nil {
		return nil, r.finish(op, agent, start, err)
	}
	if subscriptionID == "" {
		return nil, r.finish(op, agent, start, validationErr(op, agent, "", "subscription ID is required"))
	}
	if maxSamples <= 0 {
		return nil, r.finish(op, agent, start, validationErr(op, agent, "", "maxSamples must be positive"))
	}
	if err := r.admit(op, agent); err != nil {
		return nil, r.finish(op, agent, start, err)
	}
	if err := r.checkOwner(op, agent, subscriptionID); err != nil {
		return nil, r.finish(op, agent, start, err)
	}

	if maxSamples > r.maxRead {
		maxSamples = r.maxRead
	}
	records, err := r.subs.Poll(subscriptionID, maxSamples)
	if err != nil {
		return nil, r.finish(op, agent, start, bind(err, agent))
	}
	return records, r.finish(op, agent, start, nil)
}

// ListTopics returns the topics the agent may read and write.
func (r *Router) ListTopics(ctx context.Context, agent string) (gw.TopicGrants, error) {
	const op = "list_topics"
	start := time.Now()

	if err := r.validateAgent(op, agent); err != nil {
		return gw.TopicGrants{}, r.finish(op, agent, start, err)
	}
	if err := r.admit(op, agent); err != nil {
		return gw.TopicGrants{}, r.finish(op, agent, start, err)
	}

	grants := gw.TopicGrants{
		Readable: r.perms.ReadableTopics(agent),
		Writable: r.perms.WritableTopics(agent),
	}
	return grants, r.finish(op, agent, start, nil)
}

// TopicInfo returns the schema descriptor for a topic the agent holds any
// grant on.
func (r *Router) TopicInfo(ctx context.Context, agent, topic string) (*schema.TopicDescriptor, error) {
	const op = "topic_info"
	start := time.Now()

	if err := r.validateAgentTopic(op, agent, topic); err != nil {
		return nil, r.finish(op, agent, start, err)
	}
	if err := r.admit(op, agent); err != nil {
		return nil, r.finish(op, agent, start, err)
	}
	if !r.perms.Authorize(agent, topic, permissions.ModeRead) &&
		!r.perms.Authorize(agent, topic, permissions.ModeWrite) {
		err := r.denied(op, agent, topic)
		return nil, r.finish(op, agent, start, err)
	}

	desc, ok := r.schemas.Lookup(topic)
	if !ok {
		return nil, r.finish(op, agent, start, topicNotFound(op, agent, topic))
	}
	return desc, r.finish(op, agent, start, nil)
}

// AgentDisconnected closes every subscription the agent owns. Invoked by
// the surrounding process, not by agents, so it bypasses admission control.
func (r *Router) AgentDisconnected(ctx context.Context, agent string) error {
	const op = "agent_disconnected"
	start := time.Now()

	if err := r.validateAgent(op, agent); err != nil {
		return r.finish(op, agent, start, err)
	}
	r.subs.CloseAll(agent)
	return r.finish(op, agent, start, nil)
}

// --- pipeline stages ---

func (r *Router) validateAgent(op, agent string) error {
	if agent == "" {
		return validationErr(op, agent, "", "agent name is required")
	}
	return nil
}

func (r *Router) validateAgentTopic(op, agent, topic string) error {
	if err := r.validateAgent(op, agent); err != nil {
		return err
	}
	if topic == "" {
		return validationErr(op, agent, topic, "topic name is required")
	}
	return nil
}

func (r *Router) admit(op, agent string) error {
	admitted, scope := r.limiter.TryAcquire(agent)
	if admitted {
		return nil
	}
	r.metrics.RecordRateLimited(agent, scope)
	return &gw.Error{
		Kind: gw.KindRateLimited, Op: op, Agent: agent,
		Msg: fmt.Sprintf("%s rate limit exceeded", scope),
	}
}

func (r *Router) authorize(op, agent, topic string, mode permissions.AccessMode) error {
	if r.perms.Authorize(agent, topic, mode) {
		return nil
	}
	return r.denied(op, agent, topic)
}

func (r *Router) denied(op, agent, topic string) error {
	r.metrics.RecordDenial(agent, topic, op)
	r.logger.Warn("permission denied", "agent", agent, "topic", topic, "op", op)
	return &gw.Error{
		Kind: gw.KindPermissionDenied, Op: op, Agent: agent, Topic: topic,
		Msg: "agent does not hold the required grant",
	}
}

func (r *Router) ensureTopic(op, agent, topic string, ctx context.Context) (*mesh.TopicHandle, error) {
	desc, ok := r.schemas.Lookup(topic)
	if !ok {
		return nil, topicNotFound(op, agent, topic)
	}
	handle, err := r.adapter.EnsureTopic(ctx, desc)
	if err != nil {
		return nil, bind(err, agent)
	}
	return handle, nil
}

// checkOwner verifies the agent owns the subscription. A mismatch is a
// permission denial. An ID not in the live set passes: polling it surfaces
// as a validation error and closing it is a no-op, so callers cannot probe
// which IDs exist.
func (r *Router) checkOwner(op, agent, subscriptionID string) error {
	owner, ok := r.subs.Owner(subscriptionID)
	if !ok {
		return nil
	}
	if owner != agent {
		return r.denied(op, agent, "")
	}
	return nil
}

// finish records the request outcome and latency, logging internal errors
// so invariant violations are never silently swallowed.
func (r *Router) finish(op, agent string, start time.Time, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = gw.KindOf(err).String()
		if gw.KindOf(err) == gw.KindInternal {
			r.logger.Error("internal error", "op", op, "agent", agent, "error", err)
		}
	}
	r.metrics.RecordRequest(op, agent, outcome, time.Since(start))
	return err
}

func validationErr(op, agent, topic, msg string) error {
	return &gw.Error{Kind: gw.KindValidation, Op: op, Agent: agent, Topic: topic, Msg: msg}
}

func topicNotFound(op, agent, topic string) error {
	return &gw.Error{Kind: gw.KindTopicNotFound, Op: op, Agent: agent, Topic: topic, Msg: "no schema entry"}
}

// bind stamps the agent onto typed errors coming up from components that
// do not know the requesting agent.
func bind(err error, agent string) error {
	if ge, ok := err.(*gw.Error); ok && ge.Agent == "" {
		ge.Agent = agent
	}
	return err
}

// Verify that Router implements the Gateway interface at compile time
var _ gw.Gateway = (*Router)(nil)
