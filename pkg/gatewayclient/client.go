// Package gatewayclient provides a typed HTTP client for the gateway API.
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/meshgate/meshgate/pkg/gateway"
)

// Client provides HTTP access to a running gateway
type Client struct {
	config     Config
	httpClient *http.Client
	token      string
	baseURL    *url.URL
}

// NewClient creates a new gateway HTTP client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	if config.AgentName == "" {
		return nil, fmt.Errorf("AgentName is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// Authenticate authenticates with the gateway and stores the token
func (c *Client) Authenticate(ctx context.Context) error {
	authReq := map[string]string{
		"agentName": c.config.AgentName,
	}

	var authResp AuthResponse
	err := c.doRequest(ctx, "POST", "/api/v1/auth/login", authReq, &authResp, false)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.token = authResp.Token
	return nil
}

// ListTopics returns the topics this agent may read and write
func (c *Client) ListTopics(ctx context.Context) (*TopicsResponse, error) {
	if c.token == "" {
		return nil, fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	var resp TopicsResponse
	err := c.doRequest(ctx, "GET", "/api/v1/topics", nil, &resp, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	return &resp, nil
}

// TopicInfo returns the schema of one topic
func (c *Client) TopicInfo(ctx context.Context, topic string) (*TopicInfoResponse, error) {
	if c.token == "" {
		return nil, fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	path := fmt.Sprintf("/api/v1/topics/%s", url.PathEscape(topic))
	var resp TopicInfoResponse
	err := c.doRequest(ctx, "GET", path, nil, &resp, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get topic info: %w", err)
	}

	return &resp, nil
}

// Read drains up to max buffered samples from a topic
func (c *Client) Read(ctx context.Context, topic string, max int) (*SamplesResponse, error) {
	if c.token == "" {
		return nil, fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	path := fmt.Sprintf("/api/v1/topics/%s/samples", url.PathEscape(topic))
	queryParams := url.Values{}
	if max > 0 {
		queryParams.Set("max", fmt.Sprintf("%d", max))
	}

	var resp SamplesResponse
	err := c.doRequestWithQuery(ctx, "GET", path, queryParams, nil, &resp, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	return &resp, nil
}

// Write publishes one record to a topic
func (c *Client) Write(ctx context.Context, topic string, record gateway.Record) (*WriteResponse, error) {
	if c.token == "" {
		return nil, fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	path := fmt.Sprintf("/api/v1/topics/%s/samples", url.PathEscape(topic))
	var resp WriteResponse
	err := c.doRequest(ctx, "POST", path, WriteRequest{Record: record}, &resp, true)
	if err != nil {
		return nil, fmt.Errorf("failed to write sample: %w", err)
	}

	return &resp, nil
}

// Subscribe creates a subscription to a topic
func (c *Client) Subscribe(ctx context.Context, topic string) (*SubscriptionResponse, error) {
	if c.token == "" {
		return nil, fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	var resp SubscriptionResponse
	err := c.doRequest(ctx, "POST", "/api/v1/subscriptions", SubscriptionRequest{Topic: topic}, &resp, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	return &resp, nil
}

// Poll drains up to max delivered samples from a subscription
func (c *Client) Poll(ctx context.Context, subscriptionID string, max int) (*SamplesResponse, error) {
	if c.token == "" {
		return nil, fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	path := fmt.Sprintf("/api/v1/subscriptions/%s/samples", url.PathEscape(subscriptionID))
	queryParams := url.Values{}
	if max > 0 {
		queryParams.Set("max", fmt.Sprintf("%d", max))
	}

	var resp SamplesResponse
	err := c.doRequestWithQuery(ctx, "GET", path, queryParams, nil, &resp, true)
	if err != nil {
		return nil, fmt.Errorf("failed to poll subscription: %w", err)
	}

	return &resp, nil
}

// Unsubscribe closes a subscription by ID
func (c *Client) Unsubscribe(ctx context.Context, subscriptionID string) error {
	if c.token == "" {
		return fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	path := fmt.Sprintf("/api/v1/subscriptions/%s", url.PathEscape(subscriptionID))
	err := c.doRequest(ctx, "DELETE", path, nil, nil, true)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	return nil
}

// Disconnect closes every subscription this agent owns
func (c *Client) Disconnect(ctx context.Context) error {
	if c.token == "" {
		return fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	err := c.doRequest(ctx, "POST", "/api/v1/disconnect", nil, nil, true)
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}

	return nil
}

// GetHealth returns the health status of the gateway
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(ctx, "GET", "/api/v1/health", nil, &resp, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get health status: %w", err)
	}

	return &resp, nil
}

// Admin Methods (require admin token)

// AdminListSubscriptions returns all subscriptions (admin only)
func (c *Client) AdminListSubscriptions(ctx context.Context) (*AdminSubscriptionsResponse, error) {
	if c.token == "" {
		return nil, fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	var resp AdminSubscriptionsResponse
	err := c.doRequest(ctx, "GET", "/api/v1/admin/subscriptions", nil, &resp, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list all subscriptions: %w", err)
	}

	return &resp, nil
}

// AdminGetStats returns system statistics (admin only)
func (c *Client) AdminGetStats(ctx context.Context) (*AdminStatsResponse, error) {
	if c.token == "" {
		return nil, fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	var resp AdminStatsResponse
	err := c.doRequest(ctx, "GET", "/api/v1/admin/stats", nil, &resp, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return &resp, nil
}

// AdminSetRateLimit enables or disables admission control (admin only)
func (c *Client) AdminSetRateLimit(ctx context.Context, enabled bool) error {
	if c.token == "" {
		return fmt.Errorf("client not authenticated - call Authenticate() first")
	}

	req := map[string]bool{"enabled": enabled}
	err := c.doRequest(ctx, "PUT", "/api/v1/admin/ratelimit", req, nil, true)
	if err != nil {
		return fmt.Errorf("failed to toggle rate limiting: %w", err)
	}

	return nil
}

// doRequestWithQuery performs an HTTP request with query parameters and optional authentication
func (c *Client) doRequestWithQuery(ctx context.Context, method, path string, queryParams url.Values, reqBody interface{}, respBody interface{}, requireAuth bool) error {
	u := &url.URL{Path: path}
	if len(queryParams) > 0 {
		u.RawQuery = queryParams.Encode()
	}
	fullURL := c.baseURL.ResolveReference(u)

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(bodyBytes))
		}
		return fmt.Errorf("API error (%d): %s - %s", resp.StatusCode, errResp.Error, errResp.Message)
	}

	if respBody != nil {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// doRequest performs an HTTP request with optional authentication
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody interface{}, respBody interface{}, requireAuth bool) error {
	return c.doRequestWithQuery(ctx, method, path, nil, reqBody, respBody, requireAuth)
}

// IsAuthenticated returns whether the client has a valid token
func (c *Client) IsAuthenticated() bool {
	return c.token != ""
}

// GetToken returns the current authentication token
func (c *Client) GetToken() string {
	return c.token
}

// SetToken sets the authentication token (useful for testing or token reuse)
func (c *Client) SetToken(token string) {
	c.token = token
}
