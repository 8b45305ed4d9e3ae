package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/meshgate/meshgate/internal/mesh"
	"github.com/meshgate/meshgate/internal/metrics"
	"github.com/meshgate/meshgate/pkg/gateway"
	"github.com/meshgate/meshgate/pkg/schema"
)

func testDescriptors() []schema.TopicDescriptor {
	return []schema.TopicDescriptor{
		{
			Name: "StatusTopic",
			Fields: []schema.FieldDef{
				{Name: "node_id", Type: schema.TypeString, Key: true},
				{Name: "load", Type: schema.TypeFloat64},
			},
			QoS: schema.DefaultQoS(),
		},
	}
}

// testEnv wires a registry over a real in-process mesh so tests exercise the
// actual delivery path: adapter write, listener callback, registry queue.
type testEnv struct {
	adapter *mesh.Adapter
	schemas *schema.Registry
	reg     *Registry
	handle  *mesh.TopicHandle
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	schemas, err := schema.NewRegistry(testDescriptors())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	adapter := mesh.NewAdapter(mesh.NewLoopbackParticipant(), metrics.NoopSink{}, nil)
	t.Cleanup(func() { _ = adapter.Close() })

	reg := NewRegistry(adapter, schemas, metrics.NoopSink{}, nil)
	t.Cleanup(reg.Shutdown)

	desc, _ := schemas.Lookup("StatusTopic")
	handle, err := adapter.EnsureTopic(context.Background(), desc)
	if err != nil {
		t.Fatalf("EnsureTopic failed: %v", err)
	}
	return &testEnv{adapter: adapter, schemas: schemas, reg: reg, handle: handle}
}

func (e *testEnv) write(t *testing.T, nodeID string) {
	t.Helper()
	rec := gateway.Record{"node_id": nodeID, "load": 1.0}
	if err := e.adapter.Write(context.Background(), e.handle, rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

// pollUntil retries Poll until want records arrive or the deadline expires.
// Delivery runs on the reader goroutine, so arrival is asynchronous.
func pollUntil(t *testing.T, reg *Registry, id string, want int) []gateway.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var got []gateway.Record
	for time.Now().Before(deadline) {
		records, err := reg.Poll(id, 0)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		got = append(got, records...)
		if len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("got %d records before deadline, want %d", len(got), want)
	return nil
}

func TestCreateAndDeliver(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.reg.Create(context.Background(), "monitoring_agent", "StatusTopic")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty id")
	}

	env.write(t, "node-1")
	env.write(t, "node-2")

	records := pollUntil(t, env.reg, id, 2)
	if records[0]["node_id"] != "node-1" || records[1]["node_id"] != "node-2" {
		t.Fatalf("records out of order: %v", records)
	}

	// Drained queue polls empty without error.
	empty, err := env.reg.Poll(id, 0)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("drained queue returned %d records", len(empty))
	}
}

func TestCreateUnknownTopic(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reg.Create(context.Background(), "agent", "NoSuchTopic")
	var ge *gateway.Error
	if !errors.As(err, &ge) {
		t.Fatalf("Create error = %v, want *gateway.Error", err)
	}
	if ge.Kind != gateway.KindTopicNotFound {
		t.Errorf("Kind = %v, want KindTopicNotFound", ge.Kind)
	}
	if env.reg.Count() != 0 {
		t.Errorf("failed Create left %d subscriptions registered", env.reg.Count())
	}
}

func TestPollRespectsMax(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.reg.Create(context.Background(), "agent", "StatusTopic")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		env.write(t, fmt.Sprintf("node-%d", i))
	}
	// Wait for all five to arrive, then verify max splits the drain.
	pollUntilQueued(t, env.reg, id, 5)

	first, err := env.reg.Poll(id, 3)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(first) != 3 || first[0]["node_id"] != "node-0" {
		t.Fatalf("first Poll = %v, want node-0..node-2", first)
	}
	rest, err := env.reg.Poll(id, 0)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(rest) != 2 || rest[0]["node_id"] != "node-3" {
		t.Fatalf("second Poll = %v, want node-3..node-4", rest)
	}
}

// pollUntilQueued waits until the queue holds want records without draining.
func pollUntilQueued(t *testing.T, reg *Registry, id string, want int) []gateway.SubscriptionInfo {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, info := range reg.List() {
			if info.ID == id && info.Queued >= want {
				return reg.List()
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue never reached %d records", want)
	return nil
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	env := newTestEnv(t)
	env.reg.SetQueueCapacity(3)

	id, err := env.reg.Create(context.Background(), "agent", "StatusTopic")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Bypass the mesh and feed the queue directly so the overflow point is
	// deterministic.
	for i := 0; i < 5; i++ {
		env.reg.Deliver(id, gateway.Record{"node_id": fmt.Sprintf("node-%d", i)})
	}

	records, err := env.reg.Poll(id, 0)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0]["node_id"] != "node-2" || records[2]["node_id"] != "node-4" {
		t.Fatalf("wrong survivors after drop-oldest: %v", records)
	}

	infos := env.reg.List()
	if len(infos) != 1 || infos[0].Dropped != 2 {
		t.Fatalf("List = %+v, want one subscription with Dropped=2", infos)
	}
}

func TestDeliverToUnknownOrClosedIsSilent(t *testing.T) {
	env := newTestEnv(t)

	env.reg.Deliver("no-such-id", gateway.Record{"node_id": "x"})

	id, err := env.reg.Create(context.Background(), "agent", "StatusTopic")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := env.reg.Close(id); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Late callback after close lands nowhere and does not panic.
	env.reg.Deliver(id, gateway.Record{"node_id": "late"})
}

func TestCloseRemovesSubscription(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.reg.Create(context.Background(), "agent", "StatusTopic")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if env.reg.Count() != 1 {
		t.Fatalf("Count = %d, want 1", env.reg.Count())
	}

	if err := env.reg.Close(id); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if env.reg.Count() != 0 {
		t.Fatalf("Count after Close = %d, want 0", env.reg.Count())
	}

	if _, err := env.reg.Poll(id, 0); gateway.KindOf(err) != gateway.KindValidation {
		t.Fatalf("Poll after Close error = %v, want validation error", err)
	}
	if _, ok := env.reg.Owner(id); ok {
		t.Fatal("Owner still resolves a closed subscription")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.reg.Create(context.Background(), "agent", "StatusTopic")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := env.reg.Close(id); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := env.reg.Close(id); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := env.reg.Close("never-issued"); err != nil {
		t.Fatalf("Close of unknown id failed: %v", err)
	}
}

func TestCloseAllByAgent(t *testing.T) {
	env := newTestEnv(t)

	mine1, _ := env.reg.Create(context.Background(), "agent-a", "StatusTopic")
	mine2, _ := env.reg.Create(context.Background(), "agent-a", "StatusTopic")
	other, _ := env.reg.Create(context.Background(), "agent-b", "StatusTopic")

	if n := env.reg.CloseAll("agent-a"); n != 2 {
		t.Fatalf("CloseAll closed %d, want 2", n)
	}
	if env.reg.Count() != 1 {
		t.Fatalf("Count = %d, want 1", env.reg.Count())
	}
	for _, id := range []string{mine1, mine2} {
		if _, ok := env.reg.Owner(id); ok {
			t.Errorf("subscription %s survived CloseAll", id)
		}
	}
	if owner, ok := env.reg.Owner(other); !ok || owner != "agent-b" {
		t.Errorf("agent-b subscription lost: owner=%q ok=%v", owner, ok)
	}

	if n := env.reg.CloseAll("agent-a"); n != 0 {
		t.Fatalf("repeat CloseAll closed %d, want 0", n)
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Create(context.Background(), "agent-a", "StatusTopic")
	env.reg.Create(context.Background(), "agent-b", "StatusTopic")

	env.reg.Shutdown()
	if env.reg.Count() != 0 {
		t.Fatalf("Count after Shutdown = %d, want 0", env.reg.Count())
	}
}

func TestOwner(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.reg.Create(context.Background(), "agent-a", "StatusTopic")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if owner, ok := env.reg.Owner(id); !ok || owner != "agent-a" {
		t.Fatalf("Owner = %q, %v; want agent-a, true", owner, ok)
	}
	if _, ok := env.reg.Owner("nope"); ok {
		t.Fatal("Owner resolved an unknown id")
	}
}

func TestList(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.reg.Create(context.Background(), "agent-a", "StatusTopic")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	infos := env.reg.List()
	if len(infos) != 1 {
		t.Fatalf("List returned %d entries, want 1", len(infos))
	}
	info := infos[0]
	if info.ID != id || info.Agent != "agent-a" || info.Topic != "StatusTopic" {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.State != "ACTIVE" {
		t.Errorf("State = %q, want ACTIVE", info.State)
	}
}

// failingAttacher ensures topics but refuses to attach readers.
type failingAttacher struct {
	schemas *schema.Registry
}

func (f *failingAttacher) EnsureTopic(ctx context.Context, desc *schema.TopicDescriptor) (*mesh.TopicHandle, error) {
	return &mesh.TopicHandle{Descriptor: desc}, nil
}

func (f *failingAttacher) AttachSubscription(ctx context.Context, handle *mesh.TopicHandle, onSample func(gateway.Record)) (*mesh.ReaderHandle, error) {
	return nil, &gateway.Error{
		Kind: gateway.KindTransport, Op: "subscribe",
		Topic: handle.Descriptor.Name, Msg: "attach refused",
	}
}

func (f *failingAttacher) Detach(handle *mesh.ReaderHandle) {}

func TestAttachFailureDiscardsSubscription(t *testing.T) {
	schemas, err := schema.NewRegistry(testDescriptors())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	reg := NewRegistry(&failingAttacher{schemas: schemas}, schemas, metrics.NoopSink{}, nil)

	_, err = reg.Create(context.Background(), "agent", "StatusTopic")
	if gateway.KindOf(err) != gateway.KindTransport {
		t.Fatalf("Create error = %v, want transport error", err)
	}
	if reg.Count() != 0 {
		t.Fatalf("failed Create left %d subscriptions registered", reg.Count())
	}
	if len(reg.List()) != 0 {
		t.Fatal("failed Create is visible in List")
	}
}
