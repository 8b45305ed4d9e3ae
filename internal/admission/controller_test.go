package admission

import (
	"fmt"
	"testing"
	"time"
)

// fakeClock provides a controllable time source for bucket refill tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testConfig() Config {
	return Config{
		Enabled:      true,
		Global:       Limits{Capacity: 100, RefillPerSecond: 10},
		AgentDefault: Limits{Capacity: 3, RefillPerSecond: 1},
	}
}

func TestBurstThenDeny(t *testing.T) {
	clock := newFakeClock()
	c := newController(testConfig(), nil, clock.now)

	// Capacity admissions succeed back to back
	for i := 0; i < 3; i++ {
		admitted, scope := c.TryAcquire("agent-a")
		if !admitted {
			t.Fatalf("request %d: expected admission, denied at %s", i+1, scope)
		}
	}

	// The next is denied at the agent stage
	admitted, scope := c.TryAcquire("agent-a")
	if admitted {
		t.Fatal("expected denial after burst exhausted")
	}
	if scope != "agent" {
		t.Errorf("expected agent-scope denial, got %q", scope)
	}
}

func TestRefillGrantsOneMoreToken(t *testing.T) {
	clock := newFakeClock()
	c := newController(testConfig(), nil, clock.now)

	for i := 0; i < 3; i++ {
		c.TryAcquire("agent-a")
	}
	if admitted, _ := c.TryAcquire("agent-a"); admitted {
		t.Fatal("expected bucket to be empty")
	}

	// One refill interval restores exactly one token
	clock.advance(time.Second)
	if admitted, _ := c.TryAcquire("agent-a"); !admitted {
		t.Fatal("expected one admission after refill interval")
	}
	if admitted, _ := c.TryAcquire("agent-a"); admitted {
		t.Fatal("expected only one token to have refilled")
	}
}

func TestTokensCapAtCapacity(t *testing.T) {
	clock := newFakeClock()
	c := newController(testConfig(), nil, clock.now)

	// A long idle period must not accumulate beyond capacity
	clock.advance(time.Hour)
	for i := 0; i < 3; i++ {
		if admitted, _ := c.TryAcquire("agent-a"); !admitted {
			t.Fatalf("request %d: expected admission at capacity", i+1)
		}
	}
	if admitted, _ := c.TryAcquire("agent-a"); admitted {
		t.Fatal("expected denial beyond capacity")
	}
}

func TestGlobalBucketSharedAcrossAgents(t *testing.T) {
	clock := newFakeClock()
	cfg := Config{
		Enabled:      true,
		Global:       Limits{Capacity: 10, RefillPerSecond: 1},
		AgentDefault: Limits{Capacity: 100, RefillPerSecond: 100},
	}
	c := newController(cfg, nil, clock.now)

	// Five agents draining the shared bucket: 10 admissions total
	admitted := 0
	for i := 0; i < 15; i++ {
		agent := fmt.Sprintf("agent-%d", i%5)
		ok, scope := c.TryAcquire(agent)
		if ok {
			admitted++
		} else if scope != "global" {
			t.Errorf("expected global-scope denial, got %q", scope)
		}
	}
	if admitted != 10 {
		t.Errorf("expected 10 admissions through the global bucket, got %d", admitted)
	}
}

func TestAgentDenialSparesGlobalTokens(t *testing.T) {
	clock := newFakeClock()
	cfg := Config{
		Enabled:      true,
		Global:       Limits{Capacity: 5, RefillPerSecond: 1},
		AgentDefault: Limits{Capacity: 1, RefillPerSecond: 1},
	}
	c := newController(cfg, nil, clock.now)

	// Exhaust agent-a's single token, then hammer it
	c.TryAcquire("agent-a")
	for i := 0; i < 10; i++ {
		c.TryAcquire("agent-a")
	}

	// agent-b still finds 4 global tokens: agent-stage denials consumed none
	for i := 0; i < 4; i++ {
		if ok, scope := c.TryAcquire("agent-b"); !ok {
			t.Fatalf("request %d: expected admission for agent-b, denied at %s", i+1, scope)
		}
	}
}

func TestAgentOverrides(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.AgentOverrides = map[string]Limits{
		"vip": {Capacity: 10, RefillPerSecond: 5},
	}
	c := newController(cfg, nil, clock.now)

	for i := 0; i < 10; i++ {
		if admitted, _ := c.TryAcquire("vip"); !admitted {
			t.Fatalf("request %d: expected vip admission", i+1)
		}
	}
	if admitted, _ := c.TryAcquire("vip"); admitted {
		t.Fatal("expected vip denial beyond override capacity")
	}
}

func TestDisabledAdmitsEverything(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.Enabled = false
	c := newController(cfg, nil, clock.now)

	for i := 0; i < 1000; i++ {
		if admitted, _ := c.TryAcquire("agent-a"); !admitted {
			t.Fatal("expected all requests admitted while disabled")
		}
	}
}

func TestSetEnabledAtRuntime(t *testing.T) {
	clock := newFakeClock()
	c := newController(testConfig(), nil, clock.now)

	for i := 0; i < 3; i++ {
		c.TryAcquire("agent-a")
	}
	if admitted, _ := c.TryAcquire("agent-a"); admitted {
		t.Fatal("expected denial with limiter enabled")
	}

	c.SetEnabled(false)
	if admitted, _ := c.TryAcquire("agent-a"); !admitted {
		t.Fatal("expected admission with limiter disabled")
	}

	c.SetEnabled(true)
	if admitted, _ := c.TryAcquire("agent-a"); admitted {
		t.Fatal("expected denial again after re-enable")
	}
}

func TestSnapshot(t *testing.T) {
	clock := newFakeClock()
	c := newController(testConfig(), nil, clock.now)

	c.TryAcquire("agent-a")
	c.TryAcquire("agent-b")
	for i := 0; i < 5; i++ {
		c.TryAcquire("agent-a")
	}

	stats := c.Snapshot()
	if !stats.Enabled {
		t.Error("expected enabled in snapshot")
	}
	// agent-a: 3 admitted then denied; agent-b: 1 admitted
	if stats.Admitted != 4 {
		t.Errorf("expected 4 admitted, got %d", stats.Admitted)
	}
	if stats.Denied != 3 {
		t.Errorf("expected 3 denied, got %d", stats.Denied)
	}
	if stats.AgentBuckets != 2 {
		t.Errorf("expected 2 agent buckets, got %d", stats.AgentBuckets)
	}
	if stats.GlobalAvailable != 96 {
		t.Errorf("expected 96 global tokens, got %.1f", stats.GlobalAvailable)
	}
}

func TestBucketsCreatedLazily(t *testing.T) {
	clock := newFakeClock()
	c := newController(testConfig(), nil, clock.now)

	if got := c.Snapshot().AgentBuckets; got != 0 {
		t.Errorf("expected no buckets before first use, got %d", got)
	}

	c.TryAcquire("agent-a")
	if got := c.Snapshot().AgentBuckets; got != 1 {
		t.Errorf("expected 1 bucket after first use, got %d", got)
	}
}
