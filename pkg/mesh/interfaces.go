package mesh

import (
	"context"
	"io"

	"github.com/meshgate/meshgate/pkg/schema"
)

// Participant owns the process's presence on the mesh. One participant is
// shared by all topics; readers and writers are created from it per topic.
type Participant interface {
	io.Closer

	// CreateWriter creates a typed writer for the topic with the
	// descriptor's QoS profile.
	CreateWriter(ctx context.Context, desc *schema.TopicDescriptor) (Writer, error)

	// CreateReader creates a typed reader for the topic with the
	// descriptor's QoS profile. For TRANSIENT_LOCAL topics the reader
	// receives the retained history of earlier writes.
	CreateReader(ctx context.Context, desc *schema.TopicDescriptor) (Reader, error)
}

// Writer publishes typed samples to one topic.
type Writer interface {
	io.Closer

	// Write publishes one sample. Blocking is bounded by ctx.
	Write(ctx context.Context, sample Sample) error
}

// Reader consumes typed samples from one topic, either by destructive take
// or through an asynchronous listener.
type Reader interface {
	io.Closer

	// Take removes and returns up to max buffered samples in arrival
	// order. Taken samples are never re-delivered. An empty slice, not an
	// error, means nothing was buffered.
	Take(ctx context.Context, max int) ([]Sample, error)

	// Listen registers fn to be invoked once per arriving sample, in
	// arrival order, on a delivery goroutine dedicated to this reader.
	// Listen may be called at most once per reader; Close stops delivery.
	Listen(fn func(Sample)) error
}
