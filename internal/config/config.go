// Package config loads and validates the gateway's YAML configuration:
// server settings, performance caps, rate limits, topic schemas and the
// per-agent permission table. A loaded Config converts into the concrete
// inputs of each gateway component.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meshgate/meshgate/internal/admission"
	"github.com/meshgate/meshgate/internal/permissions"
	"github.com/meshgate/meshgate/pkg/schema"
)

// Config is the root of the YAML configuration file.
type Config struct {
	Gateway      GatewayConfig      `yaml:"gateway"`
	Performance  PerformanceConfig  `yaml:"performance"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting"`
	Topics       []TopicConfig      `yaml:"topics"`
	Permissions  PermissionsConfig  `yaml:"permissions"`
}

// GatewayConfig holds server identity and listener settings.
type GatewayConfig struct {
	// Name identifies this gateway instance in logs
	Name string `yaml:"name"`

	// Listen is the HTTP listen address, e.g. ":8080"
	Listen string `yaml:"listen"`

	// SecretKey signs JWT tokens; required unless NoAuth is set
	SecretKey string `yaml:"secret_key"`

	// NoAuth disables token verification for local development
	NoAuth bool `yaml:"no_auth"`
}

// PerformanceConfig bounds per-request work.
type PerformanceConfig struct {
	// MaxSamplesPerRead clamps how many samples one read or poll returns
	MaxSamplesPerRead int `yaml:"max_samples_per_read"`

	// OpTimeoutMs bounds a single mesh operation in milliseconds
	OpTimeoutMs int `yaml:"op_timeout_ms"`
}

// AgentLimitConfig overrides the default per-agent rate limits for one agent.
type AgentLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	BurstSize         float64 `yaml:"burst_size"`
}

// RateLimitingConfig configures the admission controller.
type RateLimitingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	BurstSize         float64 `yaml:"burst_size"`

	// PerAgentLimit is the default sustained per-agent rate; the per-agent
	// burst defaults to half the global burst
	PerAgentLimit  float64                     `yaml:"per_agent_limit"`
	PerAgentBurst  float64                     `yaml:"per_agent_burst"`
	AgentOverrides map[string]AgentLimitConfig `yaml:"agents"`
}

// FieldConfig declares one typed topic field.
type FieldConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Key  bool   `yaml:"key"`
}

// QoSConfig declares a topic's transport quality-of-service profile.
// Empty strings select the defaults (RELIABLE, VOLATILE, KEEP_LAST).
type QoSConfig struct {
	Reliability string `yaml:"reliability"`
	Durability  string `yaml:"durability"`
	History     string `yaml:"history"`
	Depth       int    `yaml:"depth"`
}

// TopicConfig declares one topic schema.
type TopicConfig struct {
	Name   string        `yaml:"name"`
	QoS    QoSConfig     `yaml:"qos"`
	Fields []FieldConfig `yaml:"fields"`
}

// AgentPermissionConfig lists the topics one agent may read and write.
type AgentPermissionConfig struct {
	Read  []string `yaml:"read"`
	Write []string `yaml:"write"`
}

// PermissionsConfig maps agent name to its grants.
type PermissionsConfig map[string]AgentPermissionConfig

// Load reads, parses and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when the file omits a section.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Name:   "meshgate",
			Listen: ":8080",
		},
		Performance: PerformanceConfig{
			MaxSamplesPerRead: 100,
			OpTimeoutMs:       2000,
		},
		RateLimiting: RateLimitingConfig{
			Enabled:           true,
			RequestsPerMinute: 1000,
			BurstSize:         100,
			PerAgentLimit:     500,
		},
	}
}

// Validate checks the configuration for structural problems and
// cross-references: every permissioned topic must have a schema entry, so
// authorization can never grant access to a topic the gateway cannot
// describe.
func (c *Config) Validate() error {
	if c.Gateway.Listen == "" {
		return fmt.Errorf("gateway.listen is required")
	}
	if !c.Gateway.NoAuth && c.Gateway.SecretKey == "" {
		return fmt.Errorf("gateway.secret_key is required unless no_auth is set")
	}
	if c.Performance.MaxSamplesPerRead <= 0 {
		return fmt.Errorf("performance.max_samples_per_read must be positive")
	}
	if c.Performance.OpTimeoutMs <= 0 {
		return fmt.Errorf("performance.op_timeout_ms must be positive")
	}
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerMinute <= 0 || c.RateLimiting.BurstSize <= 0 {
			return fmt.Errorf("rate_limiting: requests_per_minute and burst_size must be positive")
		}
		if c.RateLimiting.PerAgentLimit <= 0 {
			return fmt.Errorf("rate_limiting.per_agent_limit must be positive")
		}
		for agent, l := range c.RateLimiting.AgentOverrides {
			if l.RequestsPerMinute <= 0 || l.BurstSize <= 0 {
				return fmt.Errorf("rate_limiting.agents[%s]: limits must be positive", agent)
			}
		}
	}

	known := make(map[string]bool, len(c.Topics))
	for i, t := range c.Topics {
		desc, err := t.Descriptor()
		if err != nil {
			return fmt.Errorf("topics[%d]: %w", i, err)
		}
		if known[desc.Name] {
			return fmt.Errorf("topics[%d]: duplicate topic %q", i, desc.Name)
		}
		known[desc.Name] = true
	}

	for agent, grants := range c.Permissions {
		for _, topic := range grants.Read {
			if !known[topic] {
				return fmt.Errorf("permissions[%s].read: topic %q has no schema entry", agent, topic)
			}
		}
		for _, topic := range grants.Write {
			if !known[topic] {
				return fmt.Errorf("permissions[%s].write: topic %q has no schema entry", agent, topic)
			}
		}
	}

	return nil
}

// Descriptor converts one topic entry into a validated schema descriptor.
func (t TopicConfig) Descriptor() (schema.TopicDescriptor, error) {
	desc := schema.TopicDescriptor{Name: t.Name}

	rel, err := schema.ParseReliability(t.QoS.Reliability)
	if err != nil {
		return desc, fmt.Errorf("topic %q: %w", t.Name, err)
	}
	dur, err := schema.ParseDurability(t.QoS.Durability)
	if err != nil {
		return desc, fmt.Errorf("topic %q: %w", t.Name, err)
	}
	hist, err := schema.ParseHistoryKind(t.QoS.History)
	if err != nil {
		return desc, fmt.Errorf("topic %q: %w", t.Name, err)
	}
	depth := t.QoS.Depth
	if depth == 0 && hist == schema.KeepLast {
		depth = schema.DefaultQoS().Depth
	}
	desc.QoS = schema.QoSProfile{Reliability: rel, Durability: dur, History: hist, Depth: depth}

	desc.Fields = make([]schema.FieldDef, 0, len(t.Fields))
	for _, f := range t.Fields {
		ft, err := schema.ParseFieldType(f.Type)
		if err != nil {
			return desc, fmt.Errorf("topic %q field %q: %w", t.Name, f.Name, err)
		}
		desc.Fields = append(desc.Fields, schema.FieldDef{Name: f.Name, Type: ft, Key: f.Key})
	}

	if err := desc.Validate(); err != nil {
		return desc, err
	}
	return desc, nil
}

// Descriptors converts every topic entry. Call after Validate.
func (c *Config) Descriptors() ([]schema.TopicDescriptor, error) {
	out := make([]schema.TopicDescriptor, 0, len(c.Topics))
	for _, t := range c.Topics {
		desc, err := t.Descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

// Grants converts the permission section into the store's input form.
func (c *Config) Grants() map[string]permissions.AgentGrants {
	out := make(map[string]permissions.AgentGrants, len(c.Permissions))
	for agent, g := range c.Permissions {
		out[agent] = permissions.AgentGrants{Read: g.Read, Write: g.Write}
	}
	return out
}

// AdmissionConfig converts the rate limiting section into controller
// limits. Configured rates are per minute; the controller refills per
// second.
func (c *Config) AdmissionConfig() admission.Config {
	rl := c.RateLimiting
	perAgentBurst := rl.PerAgentBurst
	if perAgentBurst == 0 {
		perAgentBurst = rl.BurstSize / 2
	}
	out := admission.Config{
		Enabled:      rl.Enabled,
		Global:       admission.Limits{Capacity: rl.BurstSize, RefillPerSecond: rl.RequestsPerMinute / 60},
		AgentDefault: admission.Limits{Capacity: perAgentBurst, RefillPerSecond: rl.PerAgentLimit / 60},
	}
	if len(rl.AgentOverrides) > 0 {
		out.AgentOverrides = make(map[string]admission.Limits, len(rl.AgentOverrides))
		for agent, l := range rl.AgentOverrides {
			out.AgentOverrides[agent] = admission.Limits{
				Capacity:        l.BurstSize,
				RefillPerSecond: l.RequestsPerMinute / 60,
			}
		}
	}
	return out
}

// OpTimeout returns the mesh operation timeout as a duration.
func (c *Config) OpTimeout() time.Duration {
	return time.Duration(c.Performance.OpTimeoutMs) * time.Millisecond
}
