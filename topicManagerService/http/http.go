// Package http provides HTTP handlers for the topic manager service.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/treebus/treebus/topicManagerService"
)

// Handler provides HTTP handlers for broker administration.
type Handler struct {
	topicManager topicManagerService.TopicManager
	metrics      http.Handler
	startTime    time.Time
}

// NewHandler creates an HTTP handler over the topic manager. The metrics
// handler is optional; when nil the /metrics route is not registered.
func NewHandler(tm topicManagerService.TopicManager, metrics http.Handler) *Handler {
	return &Handler{
		topicManager: tm,
		metrics:      metrics,
		startTime:    time.Now(),
	}
}

// RegisterRoutes registers all HTTP routes with the chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/topics/{topic}/subscribers", h.SubsCount)
	r.Post("/sticky/clean", h.CleanSticky)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
}

// SubsCountResponse is the body of GET /topics/{topic}/subscribers.
type SubsCountResponse struct {
	Topic       string `json:"topic"`
	Subscribers int    `json:"subscribers"`
}

// SubsCount handles GET /topics/{topic}/subscribers.
func (h *Handler) SubsCount(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	writeJSON(w, http.StatusOK, SubsCountResponse{
		Topic:       topic,
		Subscribers: h.topicManager.SubsCount(topic),
	})
}

// CleanStickyRequest is the body of POST /sticky/clean. An empty prefix
// cleans every topic.
type CleanStickyRequest struct {
	Prefix string `json:"prefix"`
}

// CleanSticky handles POST /sticky/clean.
func (h *Handler) CleanSticky(w http.ResponseWriter, r *http.Request) {
	var req CleanStickyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	h.topicManager.CleanSticky(req.Prefix)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "prefix": req.Prefix})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.topicManager.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
