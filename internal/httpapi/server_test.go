package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meshgate/meshgate/internal/admission"
	gwrouter "github.com/meshgate/meshgate/internal/gateway"
	"github.com/meshgate/meshgate/internal/mesh"
	"github.com/meshgate/meshgate/internal/metrics"
	"github.com/meshgate/meshgate/internal/permissions"
	"github.com/meshgate/meshgate/internal/subscriptions"
	"github.com/meshgate/meshgate/pkg/schema"
)

const testSecret = "server-test-secret"

// newTestServer assembles a full in-process gateway behind the HTTP API:
// loopback mesh, real router, real permission and admission components.
func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()

	registry, err := schema.NewRegistry([]schema.TopicDescriptor{
		{
			Name: "SensorData",
			Fields: []schema.FieldDef{
				{Name: "sensor_id", Type: schema.TypeString, Key: true},
				{Name: "temperature", Type: schema.TypeFloat64},
			},
			QoS: schema.DefaultQoS(),
		},
		{
			Name: "CommandTopic",
			Fields: []schema.FieldDef{
				{Name: "command_id", Type: schema.TypeString, Key: true},
				{Name: "action", Type: schema.TypeString},
			},
			QoS: schema.DefaultQoS(),
		},
	})
	if err != nil {
		t.Fatalf("building schema registry: %v", err)
	}

	perms := permissions.NewStore(map[string]permissions.AgentGrants{
		"sensor_agent":  {Write: []string{"SensorData"}},
		"control_agent": {Read: []string{"SensorData"}, Write: []string{"CommandTopic"}},
	})

	limiter := admission.NewController(admission.Config{
		Enabled:      true,
		Global:       admission.Limits{Capacity: 1000, RefillPerSecond: 1000},
		AgentDefault: admission.Limits{Capacity: 1000, RefillPerSecond: 1000},
	}, nil)

	sink := metrics.NoopSink{}
	participant := mesh.NewLoopbackParticipant()
	adapter := mesh.NewAdapter(participant, sink, nil)
	subs := subscriptions.NewRegistry(adapter, registry, sink, nil)
	router := gwrouter.NewRouter(perms, limiter, adapter, subs, registry, sink, nil)

	srv := NewServer(router, limiter, subs, registry, Config{
		Listen:    ":0",
		SecretKey: testSecret,
	})

	ts := httptest.NewServer(srv.Handler())
	cleanup := func() {
		ts.Close()
		subs.Shutdown()
		adapter.Close()
	}
	return ts, cleanup
}

// login obtains a bearer token for the named agent.
func login(t *testing.T, ts *httptest.Server, agent string) string {
	t.Helper()

	body, _ := json.Marshal(AuthRequest{AgentName: agent})
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login returned status %d", resp.StatusCode)
	}

	var auth AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	return auth.Token
}

// doJSON issues an authenticated request with an optional JSON body.
func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, payload any) *http.Response {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func TestHealthNoAuth(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from health, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if !health.Healthy {
		t.Error("Expected healthy gateway")
	}
	if health.Topics != 2 {
		t.Errorf("Expected 2 topics, got %d", health.Topics)
	}
}

func TestListTopicsRequiresAuth(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	resp := doJSON(t, ts, http.MethodGet, "/api/v1/topics", "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestListTopics(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, ts, "control_agent")
	resp := doJSON(t, ts, http.MethodGet, "/api/v1/topics", token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var topics TopicsResponse
	if err := json.NewDecoder(resp.Body).Decode(&topics); err != nil {
		t.Fatalf("decoding topics response: %v", err)
	}
	if len(topics.Readable) != 1 || topics.Readable[0] != "SensorData" {
		t.Errorf("Expected readable [SensorData], got %v", topics.Readable)
	}
	if len(topics.Writable) != 1 || topics.Writable[0] != "CommandTopic" {
		t.Errorf("Expected writable [CommandTopic], got %v", topics.Writable)
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	sensorToken := login(t, ts, "sensor_agent")
	controlToken := login(t, ts, "control_agent")

	record := map[string]any{"sensor_id": "s-1", "temperature": 21.5}
	resp := doJSON(t, ts, http.MethodPost, "/api/v1/topics/SensorData/samples", sensorToken, WriteRequest{Record: record})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 from write, got %d", resp.StatusCode)
	}

	resp = doJSON(t, ts, http.MethodGet, "/api/v1/topics/SensorData/samples", controlToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from read, got %d", resp.StatusCode)
	}

	var samples SamplesResponse
	if err := json.NewDecoder(resp.Body).Decode(&samples); err != nil {
		t.Fatalf("decoding samples response: %v", err)
	}
	if samples.Count != 1 {
		t.Fatalf("Expected 1 sample, got %d", samples.Count)
	}
	if samples.Samples[0]["sensor_id"] != "s-1" {
		t.Errorf("Expected sensor_id 's-1', got %v", samples.Samples[0]["sensor_id"])
	}
}

func TestWriteWithoutGrant(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	// control_agent holds no write grant on SensorData
	token := login(t, ts, "control_agent")
	record := map[string]any{"sensor_id": "s-1", "temperature": 20.0}
	resp := doJSON(t, ts, http.MethodPost, "/api/v1/topics/SensorData/samples", token, WriteRequest{Record: record})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 writing without grant, got %d", resp.StatusCode)
	}
}

func TestWriteUnknownField(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, ts, "sensor_agent")
	record := map[string]any{"sensor_id": "s-1", "nonsense": true}
	resp := doJSON(t, ts, http.MethodPost, "/api/v1/topics/SensorData/samples", token, WriteRequest{Record: record})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for undeclared field, got %d", resp.StatusCode)
	}
}

func TestTopicNotFound(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, ts, "control_agent")
	resp := doJSON(t, ts, http.MethodGet, "/api/v1/topics/NoSuchTopic/samples", token, nil)
	defer resp.Body.Close()

	// permission is checked first, so an unpermissioned unknown topic is 403
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for unknown unpermissioned topic, got %d", resp.StatusCode)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	controlToken := login(t, ts, "control_agent")
	sensorToken := login(t, ts, "sensor_agent")

	// Subscribe to SensorData
	resp := doJSON(t, ts, http.MethodPost, "/api/v1/subscriptions", controlToken, SubscriptionRequest{Topic: "SensorData"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 from subscribe, got %d", resp.StatusCode)
	}
	var sub SubscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		t.Fatalf("decoding subscription response: %v", err)
	}
	resp.Body.Close()
	if sub.ID == "" {
		t.Fatal("Expected non-empty subscription ID")
	}

	// Publish a sample
	record := map[string]any{"sensor_id": "s-9", "temperature": 30.0}
	resp = doJSON(t, ts, http.MethodPost, "/api/v1/topics/SensorData/samples", sensorToken, WriteRequest{Record: record})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 from write, got %d", resp.StatusCode)
	}

	// Delivery is asynchronous; poll until the sample shows up
	pollPath := fmt.Sprintf("/api/v1/subscriptions/%s/samples", sub.ID)
	deadline := time.Now().Add(2 * time.Second)
	var got SamplesResponse
	for {
		resp = doJSON(t, ts, http.MethodGet, pollPath, controlToken, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200 from poll, got %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decoding poll response: %v", err)
		}
		resp.Body.Close()
		if got.Count > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got.Count != 1 {
		t.Fatalf("Expected 1 delivered sample, got %d", got.Count)
	}
	if got.Samples[0]["sensor_id"] != "s-9" {
		t.Errorf("Expected sensor_id 's-9', got %v", got.Samples[0]["sensor_id"])
	}

	// A different agent cannot poll this subscription
	resp = doJSON(t, ts, http.MethodGet, pollPath, sensorToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 polling another agent's subscription, got %d", resp.StatusCode)
	}

	// Unsubscribe
	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/subscriptions/"+sub.ID, controlToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204 from unsubscribe, got %d", resp.StatusCode)
	}

	// Unsubscribing again succeeds without effect
	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/subscriptions/"+sub.ID, controlToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204 from repeated unsubscribe, got %d", resp.StatusCode)
	}

	// Polling a closed subscription is a client error
	resp = doJSON(t, ts, http.MethodGet, pollPath, controlToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 polling closed subscription, got %d", resp.StatusCode)
	}
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, ts, "control_agent")
	resp := doJSON(t, ts, http.MethodGet, "/api/v1/admin/stats", token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin token, got %d", resp.StatusCode)
	}
}

func TestAdminStats(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	adminToken := login(t, ts, "admin")
	resp := doJSON(t, ts, http.MethodGet, "/api/v1/admin/stats", adminToken, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from admin stats, got %d", resp.StatusCode)
	}

	var stats AdminStatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats response: %v", err)
	}
	if stats.Topics != 2 {
		t.Errorf("Expected 2 topics, got %d", stats.Topics)
	}
	if !stats.RateLimiter.Enabled {
		t.Error("Expected rate limiter enabled")
	}
}

func TestAdminToggleRateLimit(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	adminToken := login(t, ts, "admin")
	resp := doJSON(t, ts, http.MethodPut, "/api/v1/admin/ratelimit", adminToken, RateLimitToggleRequest{Enabled: false})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from toggle, got %d", resp.StatusCode)
	}

	resp = doJSON(t, ts, http.MethodGet, "/api/v1/admin/stats", adminToken, nil)
	defer resp.Body.Close()
	var stats AdminStatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats response: %v", err)
	}
	if stats.RateLimiter.Enabled {
		t.Error("Expected rate limiter disabled after toggle")
	}
}

func TestDisconnectClosesSubscriptions(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, ts, "control_agent")

	resp := doJSON(t, ts, http.MethodPost, "/api/v1/subscriptions", token, SubscriptionRequest{Topic: "SensorData"})
	var sub SubscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		t.Fatalf("decoding subscription response: %v", err)
	}
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodPost, "/api/v1/disconnect", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204 from disconnect, got %d", resp.StatusCode)
	}

	resp = doJSON(t, ts, http.MethodGet, "/api/v1/subscriptions/"+sub.ID+"/samples", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 polling after disconnect, got %d", resp.StatusCode)
	}
}
