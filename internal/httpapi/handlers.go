package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/meshgate/meshgate/internal/admission"
	"github.com/meshgate/meshgate/internal/subscriptions"
	"github.com/meshgate/meshgate/pkg/gateway"
	"github.com/meshgate/meshgate/pkg/schema"
)

// DefaultPollLimit is the sample cap applied when a read or poll request
// does not pass ?max=.
const DefaultPollLimit = 100

// Handlers contains all HTTP request handlers
type Handlers struct {
	gw      gateway.Gateway
	jwtAuth *JWTAuth
	limiter *admission.Controller
	subs    *subscriptions.Registry
	schemas *schema.Registry
	started time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(gw gateway.Gateway, jwtAuth *JWTAuth, limiter *admission.Controller, subs *subscriptions.Registry, schemas *schema.Registry) *Handlers {
	return &Handlers{
		gw:      gw,
		jwtAuth: jwtAuth,
		limiter: limiter,
		subs:    subs,
		schemas: schemas,
		started: time.Now(),
	}
}

// Auth endpoints

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := h.validateJSON(r); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.AgentName == "" {
		h.writeError(w, "agentName is required", http.StatusBadRequest)
		return
	}

	// Simple name-based authentication; credential validation belongs to
	// the deployment's identity provider.
	isAdmin := req.AgentName == "admin"

	token, expiresAt, err := h.jwtAuth.GenerateToken(req.AgentName, isAdmin)
	if err != nil {
		h.writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	resp := AuthResponse{
		Token:     token,
		AgentName: req.AgentName,
		ExpiresAt: expiresAt,
	}

	h.writeJSON(w, resp, http.StatusOK)
}

// Topic endpoints

// ListTopics handles GET /api/v1/topics
func (h *Handlers) ListTopics(w http.ResponseWriter, r *http.Request) {
	grants, err := h.gw.ListTopics(r.Context(), AgentName(r))
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}

	h.writeJSON(w, TopicsResponse{Readable: grants.Readable, Writable: grants.Writable}, http.StatusOK)
}

// TopicInfo handles GET /api/v1/topics/{topic}
func (h *Handlers) TopicInfo(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]

	desc, err := h.gw.TopicInfo(r.Context(), AgentName(r), topic)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}

	resp := TopicInfoResponse{
		Name: desc.Name,
		QoS: QoSInfo{
			Reliability: desc.QoS.Reliability.String(),
			Durability:  desc.QoS.Durability.String(),
			History:     desc.QoS.History.String(),
			Depth:       desc.QoS.Depth,
		},
	}
	for _, f := range desc.Fields {
		resp.Fields = append(resp.Fields, FieldInfo{Name: f.Name, Type: f.Type.String(), Key: f.Key})
	}

	h.writeJSON(w, resp, http.StatusOK)
}

// ReadSamples handles GET /api/v1/topics/{topic}/samples
func (h *Handlers) ReadSamples(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	max := h.parseMax(r)

	records, err := h.gw.Read(r.Context(), AgentName(r), topic, max)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}
	if records == nil {
		records = []gateway.Record{}
	}

	h.writeJSON(w, SamplesResponse{Topic: topic, Samples: records, Count: len(records)}, http.StatusOK)
}

// WriteSample handles POST /api/v1/topics/{topic}/samples
func (h *Handlers) WriteSample(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]

	if err := h.validateJSON(r); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Record == nil {
		h.writeError(w, "record is required", http.StatusBadRequest)
		return
	}

	if err := h.gw.Write(r.Context(), AgentName(r), topic, req.Record); err != nil {
		h.writeGatewayError(w, err)
		return
	}

	h.writeJSON(w, WriteResponse{Topic: topic, Timestamp: time.Now().UTC()}, http.StatusCreated)
}

// Subscription endpoints

// CreateSubscription handles POST /api/v1/subscriptions
func (h *Handlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.validateJSON(r); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	agent := AgentName(r)
	id, err := h.gw.Subscribe(r.Context(), agent, req.Topic)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}

	h.writeJSON(w, SubscriptionResponse{ID: id, Topic: req.Topic, AgentName: agent}, http.StatusCreated)
}

// PollSubscription handles GET /api/v1/subscriptions/{id}/samples
func (h *Handlers) PollSubscription(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	max := h.parseMax(r)

	records, err := h.gw.PollSubscription(r.Context(), AgentName(r), id, max)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}
	if records == nil {
		records = []gateway.Record{}
	}

	h.writeJSON(w, SamplesResponse{Samples: records, Count: len(records)}, http.StatusOK)
}

// DeleteSubscription handles DELETE /api/v1/subscriptions/{id}
func (h *Handlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.gw.Unsubscribe(r.Context(), AgentName(r), id); err != nil {
		h.writeGatewayError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Disconnect handles POST /api/v1/disconnect: the agent's clean goodbye,
// closing every subscription it owns.
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.gw.AgentDisconnected(r.Context(), AgentName(r)); err != nil {
		h.writeGatewayError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Admin endpoints

// AdminListSubscriptions handles GET /api/v1/admin/subscriptions
func (h *Handlers) AdminListSubscriptions(w http.ResponseWriter, r *http.Request) {
	infos := h.subs.List()

	resp := AdminSubscriptionsResponse{
		Subscriptions: make([]AdminSubscriptionInfo, 0, len(infos)),
	}
	for _, s := range infos {
		resp.Subscriptions = append(resp.Subscriptions, AdminSubscriptionInfo{
			ID:        s.ID,
			Topic:     s.Topic,
			AgentName: s.Agent,
			State:     s.State,
			Queued:    s.Queued,
			Dropped:   s.Dropped,
		})
	}

	h.writeJSON(w, resp, http.StatusOK)
}

// AdminGetStats handles GET /api/v1/admin/stats
func (h *Handlers) AdminGetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.limiter.Snapshot()

	resp := AdminStatsResponse{
		Topics:        h.schemas.Len(),
		Subscriptions: h.subs.Count(),
		RateLimiter: RateLimiterStats{
			Enabled:         stats.Enabled,
			Admitted:        stats.Admitted,
			Denied:          stats.Denied,
			GlobalAvailable: stats.GlobalAvailable,
			AgentBuckets:    stats.AgentBuckets,
		},
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}

	h.writeJSON(w, resp, http.StatusOK)
}

// AdminToggleRateLimit handles PUT /api/v1/admin/ratelimit
func (h *Handlers) AdminToggleRateLimit(w http.ResponseWriter, r *http.Request) {
	if err := h.validateJSON(r); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req RateLimitToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.limiter.SetEnabled(req.Enabled)
	h.writeJSON(w, RateLimitToggleRequest{Enabled: req.Enabled}, http.StatusOK)
}

// AdminDisconnectAgent handles POST /api/v1/admin/agents/{agent}/disconnect
func (h *Handlers) AdminDisconnectAgent(w http.ResponseWriter, r *http.Request) {
	agent := mux.Vars(r)["agent"]

	if err := h.gw.AgentDisconnected(r.Context(), agent); err != nil {
		h.writeGatewayError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health endpoint

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Healthy:             true,
		Topics:              h.schemas.Len(),
		ActiveSubscriptions: h.subs.Count(),
		Message:             "gateway is running",
	}

	h.writeJSON(w, resp, http.StatusOK)
}

// Helper methods

// parseMax reads the ?max= query parameter, falling back to the default
func (h *Handlers) parseMax(r *http.Request) int {
	raw := r.URL.Query().Get("max")
	if raw == "" {
		return DefaultPollLimit
	}
	max, err := strconv.Atoi(raw)
	if err != nil || max <= 0 {
		return DefaultPollLimit
	}
	return max
}

// validateJSON ensures the request carries a JSON body
func (h *Handlers) validateJSON(r *http.Request) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errors.New("Content-Type must be application/json")
	}
	return nil
}

// writeGatewayError maps a gateway error kind onto an HTTP status
func (h *Handlers) writeGatewayError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch gateway.KindOf(err) {
	case gateway.KindValidation:
		status = http.StatusBadRequest
	case gateway.KindSchemaMismatch:
		status = http.StatusUnprocessableEntity
	case gateway.KindPermissionDenied:
		status = http.StatusForbidden
	case gateway.KindTopicNotFound:
		status = http.StatusNotFound
	case gateway.KindRateLimited:
		status = http.StatusTooManyRequests
	case gateway.KindTransport:
		status = http.StatusBadGateway
	}

	h.writeError(w, err.Error(), status)
}

// writeError writes an error response as JSON
func (h *Handlers) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
