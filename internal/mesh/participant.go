package mesh

import (
	"context"
	"errors"
	"sync"

	meshpkg "github.com/meshgate/meshgate/pkg/mesh"
	"github.com/meshgate/meshgate/pkg/schema"
)

var (
	// ErrParticipantClosed is returned when creating endpoints on a closed participant
	ErrParticipantClosed = errors.New("participant is closed")
	// ErrWriterClosed is returned when writing through a closed writer
	ErrWriterClosed = errors.New("writer is closed")
	// ErrReaderClosed is returned when taking from a closed reader
	ErrReaderClosed = errors.New("reader is closed")
	// ErrListenerRegistered is returned when Listen is called twice on one reader
	ErrListenerRegistered = errors.New("reader already has a listener")
)

// LoopbackParticipant is an in-process mesh.Participant used when no external
// mesh is attached: every reader of a topic receives every sample written to
// it within this process. It honors the QoS semantics the gateway depends on:
// KEEP_LAST history bounds reader buffers, and TRANSIENT_LOCAL durability
// replays retained samples to late-joining readers.
//
// Delivery into reader buffers happens on the writer's goroutine and is
// bounded by buffer-append time; listener callbacks run on a goroutine
// dedicated to each reader, so a slow consumer never blocks the writer or
// other readers. It is safe for concurrent use.
type LoopbackParticipant struct {
	mu     sync.Mutex
	topics map[string]*loopbackTopic
	closed bool
}

// NewLoopbackParticipant creates an in-process loopback participant.
func NewLoopbackParticipant() *LoopbackParticipant {
	return &LoopbackParticipant{
		topics: make(map[string]*loopbackTopic),
	}
}

// CreateWriter creates a writer for the topic, creating the topic on first
// reference.
func (p *LoopbackParticipant) CreateWriter(ctx context.Context, desc *schema.TopicDescriptor) (meshpkg.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := p.topic(desc)
	if err != nil {
		return nil, err
	}
	return &loopbackWriter{topic: t}, nil
}

// CreateReader creates a reader for the topic. For TRANSIENT_LOCAL topics
// the reader's buffer is preloaded with the retained history.
func (p *LoopbackParticipant) CreateReader(ctx context.Context, desc *schema.TopicDescriptor) (meshpkg.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := p.topic(desc)
	if err != nil {
		return nil, err
	}

	r := &loopbackReader{
		topic:  t,
		qos:    desc.QoS,
		notify: make(chan struct{}, 1),
	}

	t.mu.Lock()
	if desc.QoS.Durability == schema.TransientLocal {
		for _, s := range t.retained {
			r.buf = append(r.buf, s.Copy())
		}
	}
	t.readers = append(t.readers, r)
	t.mu.Unlock()

	return r, nil
}

// Close closes the participant; existing readers and writers are closed and
// further endpoint creation fails.
func (p *LoopbackParticipant) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	topics := make([]*loopbackTopic, 0, len(p.topics))
	for _, t := range p.topics {
		topics = append(topics, t)
	}
	p.topics = make(map[string]*loopbackTopic)
	p.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		readers := append([]*loopbackReader(nil), t.readers...)
		t.readers = nil
		t.mu.Unlock()
		for _, r := range readers {
			r.shutdown()
		}
	}
	return nil
}

// topic gets or creates the per-topic state.
func (p *LoopbackParticipant) topic(desc *schema.TopicDescriptor) (*loopbackTopic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrParticipantClosed
	}
	t, ok := p.topics[desc.Name]
	if !ok {
		t = &loopbackTopic{desc: desc}
		p.topics[desc.Name] = t
	}
	return t, nil
}

// loopbackTopic holds the retained history and the live reader set of one
// topic. Lock ordering: topic.mu before reader.mu.
type loopbackTopic struct {
	desc *schema.TopicDescriptor

	mu       sync.Mutex
	retained []meshpkg.Sample
	readers  []*loopbackReader
}

// publish fans a sample out to every attached reader and updates the
// retained history for late joiners.
func (t *loopbackTopic) publish(sample meshpkg.Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.desc.QoS.Durability == schema.TransientLocal {
		t.retained = append(t.retained, sample.Copy())
		if t.desc.QoS.History == schema.KeepLast && len(t.retained) > t.desc.QoS.Depth {
			t.retained = t.retained[len(t.retained)-t.desc.QoS.Depth:]
		}
	}

	for _, r := range t.readers {
		r.push(sample.Copy())
	}
}

// remove detaches a reader from the fan-out set.
func (t *loopbackTopic) remove(r *loopbackReader) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.readers {
		if cur == r {
			t.readers = append(t.readers[:i], t.readers[i+1:]...)
			return
		}
	}
}

type loopbackWriter struct {
	mu     sync.Mutex
	topic  *loopbackTopic
	closed bool
}

// Write publishes one sample to all readers of the topic.
func (w *loopbackWriter) Write(ctx context.Context, sample meshpkg.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}
	t := w.topic
	w.mu.Unlock()

	t.publish(sample)
	return nil
}

func (w *loopbackWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// loopbackReader buffers arriving samples. Without a listener the buffer is
// bounded by the topic's KEEP_LAST depth (oldest dropped, DDS-style); with
// a listener the dedicated delivery goroutine drains the buffer promptly and
// invokes the callback in arrival order.
type loopbackReader struct {
	topic *loopbackTopic
	qos   schema.QoSProfile

	mu        sync.Mutex
	buf       []meshpkg.Sample
	notify    chan struct{}
	listening bool
	stop      chan struct{}
	closed    bool
}

// push appends an arriving sample. Called with topic.mu held; must stay
// cheap so a writer is never blocked for longer than buffer-append time.
func (r *loopbackReader) push(sample meshpkg.Sample) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if !r.listening && r.qos.History == schema.KeepLast && len(r.buf) >= r.qos.Depth {
		r.buf = r.buf[1:]
	}
	r.buf = append(r.buf, sample)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Take removes and returns up to max buffered samples in arrival order.
func (r *loopbackReader) Take(ctx context.Context, max int) ([]meshpkg.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		return []meshpkg.Sample{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrReaderClosed
	}

	n := len(r.buf)
	if n > max {
		n = max
	}
	out := make([]meshpkg.Sample, n)
	copy(out, r.buf[:n])
	r.buf = append(r.buf[:0], r.buf[n:]...)
	return out, nil
}

// Listen starts a delivery goroutine that invokes fn once per arriving
// sample, in arrival order. Samples already buffered are delivered first.
func (r *loopbackReader) Listen(fn func(meshpkg.Sample)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrReaderClosed
	}
	if r.listening {
		r.mu.Unlock()
		return ErrListenerRegistered
	}
	r.listening = true
	r.stop = make(chan struct{})
	stop := r.stop
	pending := len(r.buf) > 0
	r.mu.Unlock()

	if pending {
		select {
		case r.notify <- struct{}{}:
		default:
		}
	}

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-r.notify:
				for {
					r.mu.Lock()
					if r.closed || len(r.buf) == 0 {
						r.mu.Unlock()
						break
					}
					s := r.buf[0]
					r.buf = append(r.buf[:0], r.buf[1:]...)
					r.mu.Unlock()
					fn(s)
				}
			}
		}
	}()
	return nil
}

// Close detaches the reader from the topic and stops its delivery
// goroutine. Idempotent.
func (r *loopbackReader) Close() error {
	r.topic.remove(r)
	r.shutdown()
	return nil
}

func (r *loopbackReader) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.buf = nil
	if r.stop != nil {
		close(r.stop)
	}
}

// Verify interface compliance at compile time
var (
	_ meshpkg.Participant = (*LoopbackParticipant)(nil)
	_ meshpkg.Writer      = (*loopbackWriter)(nil)
	_ meshpkg.Reader      = (*loopbackReader)(nil)
)
