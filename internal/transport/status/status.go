// Package status serves a read-only HTTP view of gate state.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/stopgate/internal/audit"
	"github.com/danielpatrickdp/stopgate/internal/logging"
	"github.com/danielpatrickdp/stopgate/internal/resilience"
	"github.com/danielpatrickdp/stopgate/internal/session"
)

// #region sources

// Sessions is the read side of the session store.
type Sessions interface {
	IDs() []string
	Lookup(id string) (session.State, error)
}

// Snapshotter reports current metric values.
type Snapshotter interface {
	Snapshot(ctx context.Context) (map[string]float64, error)
}

// DecisionLog lists audited stop decisions.
type DecisionLog interface {
	ListDecisions(sessionID string, limit int) ([]audit.Decision, error)
}

// Deps are the handler's data sources. Only Sessions is required.
type Deps struct {
	Sessions   Sessions
	Metrics    Snapshotter
	Decisions  DecisionLog
	Breaker    *resilience.Breaker
	MaxDenials int
	Logger     *zap.Logger
}

// #endregion sources

// #region router

type handler struct {
	Deps
	log     *zap.Logger
	started time.Time
}

// NewRouter builds the status routes.
func NewRouter(d Deps) http.Handler {
	h := &handler{Deps: d, log: logging.OrNop(d.Logger), started: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/sessions", h.listSessions)
		r.Get("/sessions/{id}", h.getSession)
		r.Get("/sessions/{id}/decisions", h.listDecisions)
		r.Get("/metrics", h.metrics)
	})
	return r
}

// NewServer wraps the router in an http.Server bound to addr.
func NewServer(addr string, d Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// #endregion router

// #region handlers

type sessionSummary struct {
	ID              string `json:"id"`
	Thorough        bool   `json:"thorough"`
	Confidence      string `json:"confidence,omitempty"`
	PromptCount     int    `json:"prompt_count"`
	StopDenialCount int    `json:"stop_denial_count"`
	ToolCalls       int    `json:"tool_calls"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"sessions": len(h.Sessions.IDs()),
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	}
	if h.Breaker != nil {
		body["notifier_breaker"] = string(h.Breaker.State())
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	ids := h.Sessions.IDs()
	out := make([]sessionSummary, 0, len(ids))
	for _, id := range ids {
		st, err := h.Sessions.Lookup(id)
		if err != nil {
			continue
		}
		s := sessionSummary{
			ID:              id,
			Thorough:        st.Thorough(),
			PromptCount:     st.PromptCount,
			StopDenialCount: st.StopDenialCount,
			ToolCalls:       st.ToolCalls,
		}
		if st.Thorough() {
			s.Confidence = string(st.Analysis.Confidence)
		}
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.Sessions.Lookup(id)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.log.Error("lookup session", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          id,
		"state":       st,
		"max_denials": h.MaxDenials,
	})
}

func (h *handler) listDecisions(w http.ResponseWriter, r *http.Request) {
	if h.Decisions == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	id := chi.URLParam(r, "id")
	list, err := h.Decisions.ListDecisions(id, limit)
	if err != nil {
		h.log.Error("list decisions", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if list == nil {
		list = []audit.Decision{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) metrics(w http.ResponseWriter, r *http.Request) {
	if h.Metrics == nil {
		writeJSON(w, http.StatusOK, map[string]float64{})
		return
	}
	snap, err := h.Metrics.Snapshot(r.Context())
	if err != nil {
		h.log.Error("metrics snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// #endregion handlers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
