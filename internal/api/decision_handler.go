package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/pkg/httputil"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/service/decision"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/worker"
)

// projectIDHeader carries the project scope out-of-band; the body stays
// identical for every caller on a given site.
const projectIDHeader = "Project-ID"

// DecisionEngine is what the handlers need from the decision service.
type DecisionEngine interface {
	Decide(ctx context.Context, projectID int64, url, endUserID string) (*decision.Result, error)
}

// Handlers holds dependencies for the HTTP handlers.
type Handlers struct {
	engine DecisionEngine
	db     *sql.DB
	writer *worker.AssignmentWriter
}

// NewHandlers creates the handler set. db and writer may be nil in tests;
// health reporting degrades gracefully.
func NewHandlers(engine DecisionEngine, db *sql.DB, writer *worker.AssignmentWriter) *Handlers {
	return &Handlers{engine: engine, db: db, writer: writer}
}

// decisionRequest is the inbound body for POST /decision.
type decisionRequest struct {
	URL       string `json:"url"`
	EndUserID string `json:"end_user_id,omitempty"`
}

// MakeDecision answers a decision request: resolves the visitor identity,
// evaluates targeting per active experiment, and returns sticky variation
// assignments. Malformed project context is rejected here, before the
// engine is reached.
func (h *Handlers) MakeDecision(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get(projectIDHeader)
	if header == "" {
		httputil.BadRequest(w, "Project-ID header required")
		return
	}
	projectID, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid Project-ID format")
		return
	}

	var req decisionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		httputil.BadRequest(w, "url is required")
		return
	}

	result, err := h.engine.Decide(r.Context(), projectID, req.URL, req.EndUserID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

// HealthCheck reports liveness, DB reachability, and writer queue stats.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
		} else {
			status["database"] = "ok"
		}
	}

	if h.writer != nil {
		status["assignment_writer"] = h.writer.Stats()
	}

	httputil.OK(w, status)
}
