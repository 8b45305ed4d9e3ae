// Package admission implements token-bucket rate limiting, global and
// per-agent, for request admission control.
//
// Buckets refill lazily: on each acquisition attempt the elapsed time since
// the last refill is converted to tokens, capped at the bucket capacity.
// Tokens never go negative at observation time; a request is denied instead.
// Each bucket mutates under its own lock so unrelated agents never contend,
// and the bucket map is guarded separately from bucket state.
package admission

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Limits parameterizes one token bucket.
type Limits struct {
	// Capacity is the maximum token count (burst size)
	Capacity float64

	// RefillPerSecond is the sustained admission rate
	RefillPerSecond float64
}

// Config parameterizes the controller.
type Config struct {
	// Enabled turns admission control off entirely when false;
	// TryAcquire then always admits.
	Enabled bool

	// Global is the shared bucket every admitted request consumes from
	Global Limits

	// AgentDefault is applied to agents without an explicit override;
	// their buckets are created lazily on first use.
	AgentDefault Limits

	// AgentOverrides maps agent name to agent-specific limits
	AgentOverrides map[string]Limits
}

// DefaultConfig mirrors the stock gateway limits: 1000 requests per minute
// globally with a burst of 100, 500 per minute per agent with half the
// burst.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Global:       Limits{Capacity: 100, RefillPerSecond: 1000.0 / 60.0},
		AgentDefault: Limits{Capacity: 50, RefillPerSecond: 500.0 / 60.0},
	}
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
}

// tryTake refills for elapsed time and consumes one token if available.
func (b *bucket) tryTake(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// available returns the current token count without consuming.
func (b *bucket) available(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens := b.tokens + now.Sub(b.lastRefill).Seconds()*b.refillRate
	if tokens > b.capacity {
		tokens = b.capacity
	}
	return tokens
}

// Controller is the admission gate consulted once per request. A request is
// admitted only when both the agent's bucket and the shared global bucket
// hold a token. The agent bucket is checked first, so a request denied at
// the agent stage never consumes a global token.
type Controller struct {
	config  Config
	enabled atomic.Bool
	now     func() time.Time
	logger  *slog.Logger

	global *bucket

	mu     sync.RWMutex
	agents map[string]*bucket

	stats struct {
		mu       sync.Mutex
		admitted uint64
		denied   uint64
	}
}

// Stats is a point-in-time snapshot of controller counters.
type Stats struct {
	Enabled         bool
	Admitted        uint64
	Denied          uint64
	GlobalAvailable float64
	AgentBuckets    int
}

// NewController creates a controller with the given configuration.
func NewController(config Config, logger *slog.Logger) *Controller {
	return newController(config, logger, time.Now)
}

// newController allows the clock to be injected for tests. Both the global
// and per-agent buckets share this single clock source.
func newController(config Config, logger *slog.Logger, now func() time.Time) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		config: config,
		now:    now,
		logger: logger,
		agents: make(map[string]*bucket),
	}
	c.enabled.Store(config.Enabled)
	c.global = newBucket(config.Global, now())
	return c
}

func newBucket(l Limits, now time.Time) *bucket {
	return &bucket{
		tokens:     l.Capacity,
		capacity:   l.Capacity,
		refillRate: l.RefillPerSecond,
		lastRefill: now,
	}
}

// TryAcquire consumes one token for the agent. Denials are not retried
// here; the caller decides whether and when to retry. Every denial is
// logged for audit, including agent-stage denials.
//
// Scope reports which bucket denied the request: "agent", "global", or ""
// when admitted.
func (c *Controller) TryAcquire(agent string) (admitted bool, scope string) {
	if !c.enabled.Load() {
		return true, ""
	}

	now := c.now()

	// Agent bucket first: a caller already over its own limit must not
	// consume shared global capacity.
	if !c.agentBucket(agent).tryTake(now) {
		c.recordDenied()
		c.logger.Warn("admission denied", "agent", agent, "scope", "agent")
		return false, "agent"
	}

	if !c.global.tryTake(now) {
		c.recordDenied()
		c.logger.Warn("admission denied", "agent", agent, "scope", "global")
		return false, "global"
	}

	c.stats.mu.Lock()
	c.stats.admitted++
	c.stats.mu.Unlock()
	return true, ""
}

// agentBucket returns the agent's bucket, creating it lazily from the
// default (or the agent's override) on first use.
func (c *Controller) agentBucket(agent string) *bucket {
	c.mu.RLock()
	b, ok := c.agents[agent]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.agents[agent]; ok {
		return b
	}

	limits := c.config.AgentDefault
	if override, ok := c.config.AgentOverrides[agent]; ok {
		limits = override
	}
	b = newBucket(limits, c.now())
	c.agents[agent] = b
	return b
}

// SetEnabled flips admission control at runtime.
func (c *Controller) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
	c.logger.Info("admission control toggled", "enabled", enabled)
}

// Snapshot returns current counters for the admin stats view.
func (c *Controller) Snapshot() Stats {
	c.stats.mu.Lock()
	admitted, denied := c.stats.admitted, c.stats.denied
	c.stats.mu.Unlock()

	c.mu.RLock()
	agentCount := len(c.agents)
	c.mu.RUnlock()

	return Stats{
		Enabled:         c.enabled.Load(),
		Admitted:        admitted,
		Denied:          denied,
		GlobalAvailable: c.global.available(c.now()),
		AgentBuckets:    agentCount,
	}
}

func (c *Controller) recordDenied() {
	c.stats.mu.Lock()
	c.stats.denied++
	c.stats.mu.Unlock()
}
