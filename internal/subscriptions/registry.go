// Package subscriptions tracks live subscriptions and bridges asynchronous
// mesh sample arrivals to per-subscription delivery queues.
//
// Each subscription owns a bounded FIFO queue. The mesh delivery callback
// appends to it and never blocks: when the queue is full the oldest sample
// is dropped and a drop counter incremented, so backpressure costs memory
// bounded by the queue cap, not mesh delivery latency.
package subscriptions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshgate/meshgate/internal/mesh"
	"github.com/meshgate/meshgate/pkg/gateway"
	"github.com/meshgate/meshgate/pkg/schema"
)

// DefaultQueueCapacity bounds each subscription's delivery queue.
const DefaultQueueCapacity = 256

// State is the subscription lifecycle state.
type State int

const (
	// StatePending means the subscription exists but its mesh reader is
	// not yet attached.
	StatePending State = iota
	// StateActive means the mesh reader is attached and delivering.
	StateActive
	// StateClosed is terminal; a closed subscription is never reused.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	default:
		return "CLOSED"
	}
}

// Attacher is the slice of the mesh adapter the registry needs: attach a
// per-subscription reader with a delivery callback, and detach it again.
type Attacher interface {
	EnsureTopic(ctx context.Context, desc *schema.TopicDescriptor) (*mesh.TopicHandle, error)
	AttachSubscription(ctx context.Context, handle *mesh.TopicHandle, onSample func(gateway.Record)) (*mesh.ReaderHandle, error)
	Detach(handle *mesh.ReaderHandle)
}

// Subscription is one live registration. Owned exclusively by the Registry;
// its queue and state mutate only under its own lock.
type Subscription struct {
	ID        string
	Agent     string
	Topic     string
	CreatedAt time.Time

	mu      sync.Mutex
	state   State
	queue   []gateway.Record
	dropped uint64
	reader  *mesh.ReaderHandle
}

// Registry manages subscription lifecycle and delivery queues. Safe for
// concurrent use; Deliver is called from mesh delivery goroutines while
// Poll and Close run on request-handling goroutines.
type Registry struct {
	attacher Attacher
	registry *schema.Registry
	metrics  gateway.MetricsSink
	logger   *slog.Logger
	queueCap int

	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewRegistry creates a registry delivering through the given attacher.
func NewRegistry(attacher Attacher, schemas *schema.Registry, metrics gateway.MetricsSink, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		attacher: attacher,
		registry: schemas,
		metrics:  metrics,
		logger:   logger,
		queueCap: DefaultQueueCapacity,
		subs:     make(map[string]*Subscription),
	}
}

// SetQueueCapacity overrides the per-subscription queue bound.
func (r *Registry) SetQueueCapacity(n int) {
	if n > 0 {
		r.queueCap = n
	}
}

// Create allocates a PENDING subscription, attaches the mesh reader, and
// activates it. On attach failure the subscription is discarded: no record
// of it remains, and the ID is never handed out.
func (r *Registry) Create(ctx context.Context, agent, topic string) (string, error) {
	desc, ok := r.registry.Lookup(topic)
	if !ok {
		return "", &gateway.Error{
			Kind: gateway.KindTopicNotFound, Op: "subscribe",
			Agent: agent, Topic: topic, Msg: "no schema entry",
		}
	}

	topicRef, err := r.attacher.EnsureTopic(ctx, desc)
	if err != nil {
		return "", err
	}

	sub := &Subscription{
		ID:        uuid.NewString(),
		Agent:     agent,
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
		state:     StatePending,
	}

	// The subscription must be reachable before the reader attaches:
	// a retained sample can arrive between attach and activation.
	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	reader, err := r.attacher.AttachSubscription(ctx, topicRef, func(rec gateway.Record) {
		r.Deliver(sub.ID, rec)
	})
	if err != nil {
		r.mu.Lock()
		delete(r.subs, sub.ID)
		r.mu.Unlock()
		return "", err
	}

	sub.mu.Lock()
	sub.reader = reader
	sub.state = StateActive
	sub.mu.Unlock()

	r.metrics.SubscriptionOpened(topic)
	r.logger.Info("subscription created", "id", sub.ID, "agent", agent, "topic", topic)
	return sub.ID, nil
}

// Deliver appends one record to the subscription's queue. Invoked on mesh
// delivery goroutines; never blocks. Delivery to an unknown or closed
// subscription is silently dropped: Close removes the subscription from the
// live set before detaching, so a late callback lands here.
func (r *Registry) Deliver(id string, record gateway.Record) {
	r.mu.RLock()
	sub, ok := r.subs[id]
	r.mu.RUnlock()
	if !ok {
		return
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.state == StateClosed {
		return
	}
	if len(sub.queue) >= r.queueCap {
		sub.queue = sub.queue[1:]
		sub.dropped++
		r.metrics.RecordQueueDrop(sub.Topic)
	}
	sub.queue = append(sub.queue, record)
}

// Poll drains up to max records from the subscription's queue, FIFO,
// without blocking. An empty slice means nothing buffered.
func (r *Registry) Poll(id string, max int) ([]gateway.Record, error) {
	r.mu.RLock()
	sub, ok := r.subs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, unknownSubscription("poll_subscription", id)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()

	n := len(sub.queue)
	if max > 0 && n > max {
		n = max
	}
	out := make([]gateway.Record, n)
	copy(out, sub.queue[:n])
	sub.queue = append(sub.queue[:0], sub.queue[n:]...)
	return out, nil
}

// Owner returns the agent owning the subscription.
func (r *Registry) Owner(id string) (string, bool) {
	r.mu.RLock()
	sub, ok := r.subs[id]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	return sub.Agent, true
}

// Close transitions the subscription to CLOSED and detaches its reader.
// The subscription leaves the live set before the reader detaches, so once
// Close returns no further Deliver call can append to its queue. Closing a
// subscription that is not in the live set is a no-op: CLOSED is terminal
// and closing again must not fail.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	r.closeSub(sub)
	return nil
}

// CloseAll closes every subscription owned by the agent. Used on agent
// disconnect. Returns the number of subscriptions closed.
func (r *Registry) CloseAll(agent string) int {
	r.mu.Lock()
	var owned []*Subscription
	for id, sub := range r.subs {
		if sub.Agent == agent {
			owned = append(owned, sub)
			delete(r.subs, id)
		}
	}
	r.mu.Unlock()

	for _, sub := range owned {
		r.closeSub(sub)
	}
	if len(owned) > 0 {
		r.logger.Info("closed subscriptions on disconnect", "agent", agent, "count", len(owned))
	}
	return len(owned)
}

// Shutdown closes every subscription. Used on registry shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.subs = make(map[string]*Subscription)
	r.mu.Unlock()

	for _, sub := range subs {
		r.closeSub(sub)
	}
}

func (r *Registry) closeSub(sub *Subscription) {
	sub.mu.Lock()
	if sub.state == StateClosed {
		sub.mu.Unlock()
		return
	}
	sub.state = StateClosed
	reader := sub.reader
	sub.reader = nil
	sub.queue = nil
	sub.mu.Unlock()

	if reader != nil {
		r.attacher.Detach(reader)
	}
	r.metrics.SubscriptionClosed(sub.Topic)
	r.logger.Info("subscription closed", "id", sub.ID, "agent", sub.Agent, "topic", sub.Topic)
}

// Count returns the number of live subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// List returns info for every live subscription, for the admin view.
func (r *Registry) List() []gateway.SubscriptionInfo {
	r.mu.RLock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	infos := make([]gateway.SubscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		sub.mu.Lock()
		infos = append(infos, gateway.SubscriptionInfo{
			ID:      sub.ID,
			Agent:   sub.Agent,
			Topic:   sub.Topic,
			State:   sub.state.String(),
			Queued:  len(sub.queue),
			Dropped: sub.dropped,
		})
		sub.mu.Unlock()
	}
	return infos
}

func unknownSubscription(op, id string) error {
	return &gateway.Error{
		Kind: gateway.KindValidation,
		Op:   op,
		Msg:  fmt.Sprintf("unknown subscription %q", id),
	}
}
