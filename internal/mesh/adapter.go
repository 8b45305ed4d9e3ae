package mesh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshgate/meshgate/pkg/gateway"
	meshpkg "github.com/meshgate/meshgate/pkg/mesh"
	"github.com/meshgate/meshgate/pkg/schema"
)

// DefaultOpTimeout bounds blocking transport calls made by the adapter.
const DefaultOpTimeout = 2 * time.Second

// Adapter owns the gateway's single mesh participant and bridges between
// caller-facing records and the mesh's typed samples.
//
// Topic endpoints are created lazily on first reference and reused: all
// agents reading or writing a topic share one reader/writer pair. Creation
// is guarded per topic, so concurrent first references never create
// duplicate underlying resources. Subscriptions get their own dedicated
// reader each, so one slow subscriber cannot starve another.
type Adapter struct {
	participant meshpkg.Participant
	metrics     gateway.MetricsSink
	logger      *slog.Logger
	opTimeout   time.Duration

	mu       sync.Mutex
	topics   map[string]*TopicHandle
	creating map[string]*sync.Mutex
}

// TopicHandle is the shared per-topic endpoint pair.
type TopicHandle struct {
	Descriptor *schema.TopicDescriptor

	writer meshpkg.Writer
	reader meshpkg.Reader
}

// ReaderHandle identifies one attached subscription reader.
type ReaderHandle struct {
	Topic string

	reader   meshpkg.Reader
	detached atomic.Bool
}

// NewAdapter creates an adapter around the given participant.
func NewAdapter(participant meshpkg.Participant, metrics gateway.MetricsSink, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		participant: participant,
		metrics:     metrics,
		logger:      logger,
		opTimeout:   DefaultOpTimeout,
		topics:      make(map[string]*TopicHandle),
		creating:    make(map[string]*sync.Mutex),
	}
}

// SetOpTimeout overrides the bound on blocking transport calls.
func (a *Adapter) SetOpTimeout(d time.Duration) {
	if d > 0 {
		a.opTimeout = d
	}
}

// EnsureTopic returns the shared handle for the topic, creating the
// underlying writer and reader on first reference. Idempotent; concurrent
// calls for the same topic block on a per-topic creation lock.
func (a *Adapter) EnsureTopic(ctx context.Context, desc *schema.TopicDescriptor) (*TopicHandle, error) {
	a.mu.Lock()
	if h, ok := a.topics[desc.Name]; ok {
		a.mu.Unlock()
		return h, nil
	}
	lock, ok := a.creating[desc.Name]
	if !ok {
		lock = &sync.Mutex{}
		a.creating[desc.Name] = lock
	}
	a.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	// Re-check: another caller may have finished creation while we waited.
	a.mu.Lock()
	if h, ok := a.topics[desc.Name]; ok {
		a.mu.Unlock()
		return h, nil
	}
	a.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, a.opTimeout)
	defer cancel()

	writer, err := a.participant.CreateWriter(cctx, desc)
	if err != nil {
		return nil, transportErr("ensure_topic", desc.Name, "failed to create writer", err)
	}
	reader, err := a.participant.CreateReader(cctx, desc)
	if err != nil {
		werr := writer.Close()
		if werr != nil {
			a.logger.Warn("failed to close writer after reader creation failure",
				"topic", desc.Name, "error", werr)
		}
		return nil, transportErr("ensure_topic", desc.Name, "failed to create reader", err)
	}

	h := &TopicHandle{Descriptor: desc, writer: writer, reader: reader}

	a.mu.Lock()
	a.topics[desc.Name] = h
	delete(a.creating, desc.Name)
	a.mu.Unlock()

	a.logger.Info("topic endpoints created",
		"topic", desc.Name,
		"reliability", desc.QoS.Reliability.String(),
		"durability", desc.QoS.Durability.String(),
		"history", desc.QoS.History.String())
	return h, nil
}

// Write validates the record against the topic schema, converts it to the
// mesh's typed sample and publishes it. A write either fully succeeds or
// fails as a whole.
func (a *Adapter) Write(ctx context.Context, handle *TopicHandle, record gateway.Record) error {
	sample, err := MarshalRecord(handle.Descriptor, record)
	if err != nil {
		var ge *gateway.Error
		if errors.As(err, &ge) {
			ge.Op = "write"
		}
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, a.opTimeout)
	defer cancel()

	if err := handle.writer.Write(cctx, sample); err != nil {
		return transportErr("write", handle.Descriptor.Name, "publish failed", err)
	}
	a.metrics.RecordSamples(handle.Descriptor.Name, "write", 1)
	return nil
}

// Read drains up to maxSamples buffered samples from the shared topic
// reader in arrival order. Consumed samples are discarded from the
// underlying buffer. An empty slice, not an error, means nothing buffered.
func (a *Adapter) Read(ctx context.Context, handle *TopicHandle, maxSamples int) ([]gateway.Record, error) {
	cctx, cancel := context.WithTimeout(ctx, a.opTimeout)
	defer cancel()

	samples, err := handle.reader.Take(cctx, maxSamples)
	if err != nil {
		return nil, transportErr("read", handle.Descriptor.Name, "take failed", err)
	}

	records := make([]gateway.Record, 0, len(samples))
	for _, s := range samples {
		records = append(records, UnmarshalSample(handle.Descriptor, s))
	}
	if len(records) > 0 {
		a.metrics.RecordSamples(handle.Descriptor.Name, "read", len(records))
	}
	return records, nil
}

// AttachSubscription creates a dedicated reader for one subscription and
// registers onSample to be invoked once per arriving sample, in arrival
// order, on the reader's own delivery goroutine.
func (a *Adapter) AttachSubscription(ctx context.Context, handle *TopicHandle, onSample func(gateway.Record)) (*ReaderHandle, error) {
	cctx, cancel := context.WithTimeout(ctx, a.opTimeout)
	defer cancel()

	desc := handle.Descriptor
	reader, err := a.participant.CreateReader(cctx, desc)
	if err != nil {
		return nil, transportErr("subscribe", desc.Name, "failed to create subscription reader", err)
	}

	if err := reader.Listen(func(s meshpkg.Sample) {
		onSample(UnmarshalSample(desc, s))
	}); err != nil {
		cerr := reader.Close()
		if cerr != nil {
			a.logger.Warn("failed to close reader after listen failure",
				"topic", desc.Name, "error", cerr)
		}
		return nil, transportErr("subscribe", desc.Name, "failed to register listener", err)
	}

	return &ReaderHandle{Topic: desc.Name, reader: reader}, nil
}

// Detach releases the subscription reader. Idempotent.
func (a *Adapter) Detach(handle *ReaderHandle) {
	if handle == nil || !handle.detached.CompareAndSwap(false, true) {
		return
	}
	if err := handle.reader.Close(); err != nil {
		a.logger.Warn("failed to close subscription reader",
			"topic", handle.Topic, "error", err)
	}
}

// Close releases the participant and all topic endpoints.
func (a *Adapter) Close() error {
	a.mu.Lock()
	topics := a.topics
	a.topics = make(map[string]*TopicHandle)
	a.mu.Unlock()

	var firstErr error
	for name, h := range topics {
		if err := h.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := h.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.logger.Debug("topic endpoints closed", "topic", name)
	}
	if err := a.participant.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// TopicCount returns the number of topics with live endpoints.
func (a *Adapter) TopicCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.topics)
}

func transportErr(op, topic, msg string, err error) error {
	return &gateway.Error{
		Kind:  gateway.KindTransport,
		Op:    op,
		Topic: topic,
		Msg:   msg,
		Err:   err,
	}
}
