package gatewayclient

import (
	"time"

	"github.com/meshgate/meshgate/pkg/gateway"
)

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the gateway HTTP API (e.g., "http://localhost:8080")
	ServerURL string

	// AgentName identifies this agent to the gateway
	AgentName string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// AuthResponse represents the response from authentication
type AuthResponse struct {
	Token     string    `json:"token"`
	AgentName string    `json:"agentName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TopicsResponse lists topics by granted access
type TopicsResponse struct {
	Readable []string `json:"readable"`
	Writable []string `json:"writable"`
}

// FieldInfo describes one declared topic field
type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Key  bool   `json:"key,omitempty"`
}

// QoSInfo describes a topic's transport profile
type QoSInfo struct {
	Reliability string `json:"reliability"`
	Durability  string `json:"durability"`
	History     string `json:"history"`
	Depth       int    `json:"depth,omitempty"`
}

// TopicInfoResponse describes one topic's schema
type TopicInfoResponse struct {
	Name   string      `json:"name"`
	QoS    QoSInfo     `json:"qos"`
	Fields []FieldInfo `json:"fields"`
}

// WriteRequest carries one record to publish
type WriteRequest struct {
	Record gateway.Record `json:"record"`
}

// WriteResponse acknowledges a publish
type WriteResponse struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// SamplesResponse carries samples drained by a read or poll
type SamplesResponse struct {
	Topic   string           `json:"topic,omitempty"`
	Samples []gateway.Record `json:"samples"`
	Count   int              `json:"count"`
}

// SubscriptionRequest represents a subscription creation request
type SubscriptionRequest struct {
	Topic string `json:"topic"`
}

// SubscriptionResponse represents a subscription
type SubscriptionResponse struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	AgentName string `json:"agentName"`
}

// AdminSubscriptionsResponse represents admin view of all subscriptions
type AdminSubscriptionsResponse struct {
	Subscriptions []AdminSubscriptionInfo `json:"subscriptions"`
}

// AdminSubscriptionInfo represents detailed subscription info for admins
type AdminSubscriptionInfo struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	AgentName string `json:"agentName"`
	State     string `json:"state"`
	Queued    int    `json:"queued"`
	Dropped   uint64 `json:"dropped"`
}

// RateLimiterStats reports admission controller state
type RateLimiterStats struct {
	Enabled         bool    `json:"enabled"`
	Admitted        uint64  `json:"admitted"`
	Denied          uint64  `json:"denied"`
	GlobalAvailable float64 `json:"globalAvailable"`
	AgentBuckets    int     `json:"agentBuckets"`
}

// AdminStatsResponse represents system statistics
type AdminStatsResponse struct {
	Topics        int              `json:"topics"`
	Subscriptions int              `json:"subscriptions"`
	RateLimiter   RateLimiterStats `json:"rateLimiter"`
	UptimeSeconds int64            `json:"uptimeSeconds"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy             bool   `json:"healthy"`
	Topics              int    `json:"topics"`
	ActiveSubscriptions int    `json:"activeSubscriptions"`
	Message             string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
