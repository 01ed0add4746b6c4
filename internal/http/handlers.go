package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"regionsim/physics/internal/detaillog"
	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/params"
	"regionsim/physics/internal/scene"
	"regionsim/physics/internal/simulation"
)

// SceneView exposes the scene state the operational endpoints report.
type SceneView interface {
	Ready() bool
	RegionName() string
	EngineName() string
	StepStats() scene.StepStats
	ParameterList() []scene.ParameterEntry
	SetParameter(name string, value float64, target params.Target) error
	RequestPhysicalDump()
}

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Scene       SceneView
	Ticks       func() simulation.TickMetricsSnapshot
	DetailStats func() detaillog.Stats
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
	StartedAt   time.Time
}

// HandlerSet bundles the physics daemon operational handlers.
type HandlerSet struct {
	logger      *logging.Logger
	scene       SceneView
	ticks       func() simulation.TickMetricsSnapshot
	detailStats func() detaillog.Stats
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
	startedAt   time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	started := opts.StartedAt
	if started.IsZero() {
		started = now()
	}
	return &HandlerSet{
		logger:      logger,
		scene:       opts.Scene,
		ticks:       opts.Ticks,
		detailStats: opts.DetailStats,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
		startedAt:   started,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/params", h.ParametersHandler())
	mux.HandleFunc("/physics/dump", h.PhysicalDumpHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports whether the scene is stepping.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		Region        string  `json:"region,omitempty"`
		Engine        string  `json:"engine,omitempty"`
		Step          uint64  `json:"step"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Status: "ok", UptimeSeconds: h.now().Sub(h.startedAt).Seconds()}
		status := http.StatusOK
		if h.scene == nil || !h.scene.Ready() {
			status = http.StatusServiceUnavailable
			resp.Status = "error"
			resp.Message = "physics scene is not ready"
		}
		if h.scene != nil {
			resp.Region = h.scene.RegionName()
			resp.Engine = h.scene.EngineName()
			resp.Step = h.scene.StepStats().Step
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		gauge(w, "physics_uptime_seconds", "Daemon uptime in seconds.", "%.0f", h.now().Sub(h.startedAt).Seconds())

		if h.scene != nil {
			stats := h.scene.StepStats()
			ready := 0
			if h.scene.Ready() {
				ready = 1
			}
			gauge(w, "physics_ready", "Whether the scene is stepping.", "%d", ready)
			counter(w, "physics_steps_total", "Engine steps taken.", "%d", stats.Step)
			counter(w, "physics_engine_failures_total", "Engine steps that failed.", "%d", stats.EngineFailures)
			gauge(w, "physics_substeps", "Fixed increments taken by the last step.", "%d", stats.SubSteps)
			gauge(w, "physics_taints_flushed", "Deferred mutations replayed by the last step.", "%d", stats.TaintsFlushed)
			gauge(w, "physics_collisions", "Collision records returned by the last step.", "%d", stats.Collisions)
			gauge(w, "physics_updates", "Property updates returned by the last step.", "%d", stats.Updates)
			gauge(w, "physics_objects", "Resident physical objects.", "%d", stats.Objects)
			gauge(w, "physics_objects_with_collisions", "Objects with pending collision notifications.", "%d", stats.ObjectsWithCollisions)
			gauge(w, "physics_engine_step_seconds", "Wall time of the last engine step.", "%.6f", stats.EngineTime.Seconds())
		}
		if h.ticks != nil {
			ticks := h.ticks()
			gauge(w, "physics_frame_seconds_avg", "Average wall time of a simulated frame.", "%.6f", ticks.Average.Seconds())
			gauge(w, "physics_frame_seconds_max", "Longest simulated frame.", "%.6f", ticks.Max.Seconds())
			gauge(w, "physics_rate_avg", "Average normalised physics rate.", "%.2f", ticks.AverageRate)
			counter(w, "physics_not_ready_frames_total", "Frames skipped while the scene was not ready.", "%d", ticks.NotReady)
		}
		if h.detailStats != nil {
			detail := h.detailStats()
			counter(w, "physics_detail_log_lines_total", "Lines written to the detail log.", "%d", detail.Lines)
			counter(w, "physics_detail_dumps_total", "Physical dumps written to the detail log.", "%d", detail.Dumps)
			gauge(w, "physics_detail_sessions", "Detail log sessions retained on disk.", "%d", detail.Sessions)
			gauge(w, "physics_detail_stored_bytes", "Bytes held by retained detail log sessions.", "%d", detail.StoredBytes)
		}
	}
}

func gauge(w http.ResponseWriter, name, help, format string, value any) {
	metric(w, "gauge", name, help, format, value)
}

func counter(w http.ResponseWriter, name, help, format string, value any) {
	metric(w, "counter", name, help, format, value)
}

func metric(w http.ResponseWriter, kind, name, help, format string, value any) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s "+format+"\n", name, value)
}

type setParameterRequest struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Target string  `json:"target"`
}

// ParametersHandler lists parameters on GET and, for admins, sets one on POST.
func (h *HandlerSet) ParametersHandler() http.HandlerFunc {
	type response struct {
		Parameters []scene.ParameterEntry `json:"parameters"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.scene == nil {
			http.Error(w, "physics scene unavailable", http.StatusServiceUnavailable)
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, response{Parameters: h.scene.ParameterList()})
		case http.MethodPost:
			h.setParameter(w, r)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (h *HandlerSet) setParameter(w http.ResponseWriter, r *http.Request) {
	reqLogger := h.logger.With(
		logging.String("handler", "params"),
		logging.String("remote_addr", r.RemoteAddr),
	)
	if !h.admit(w, r, reqLogger, "parameter set") {
		return
	}
	var req setParameterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	target, err := params.ParseTarget(req.Target)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.scene.SetParameter(req.Name, req.Value, target); err != nil {
		if errors.Is(err, params.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		reqLogger.Error("parameter set failed", logging.Error(err))
		http.Error(w, "failed to set parameter", http.StatusInternalServerError)
		return
	}
	reqLogger.Info("parameter set",
		logging.String("parameter", req.Name),
		logging.Float64("value", req.Value),
		logging.String("target", target.String()),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// PhysicalDumpHandler authorises and schedules a dump of every body's state.
func (h *HandlerSet) PhysicalDumpHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "physical_dump"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !h.admit(w, r, reqLogger, "physical dump") {
			return
		}
		if h.scene == nil || !h.scene.Ready() {
			reqLogger.Warn("physical dump denied: scene not ready")
			http.Error(w, "physics scene is not ready", http.StatusServiceUnavailable)
			return
		}
		h.scene.RequestPhysicalDump()
		resp := response{Status: "accepted"}
		if h.detailStats != nil {
			resp.Location = h.detailStats().Directory
		}
		reqLogger.Info("physical dump requested")
		writeJSON(w, http.StatusAccepted, resp)
	}
}

// admit applies admin authentication and rate limiting, writing the refusal itself.
func (h *HandlerSet) admit(w http.ResponseWriter, r *http.Request, reqLogger *logging.Logger, what string) bool {
	if h.adminToken == "" {
		reqLogger.Warn(what + " denied: admin auth disabled")
		http.Error(w, "admin authentication not configured", http.StatusForbidden)
		return false
	}
	if !h.authorise(r) {
		reqLogger.Warn(what + " denied: unauthorized request")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if h.rateLimiter != nil && !h.rateLimiter.Allow() {
		reqLogger.Warn(what + " denied: rate limit exceeded")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
