package restreamer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"restreamer/internal/platform/logger"
	"restreamer/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the supervisor's status over HTTP using go-chi.
type Handler struct {
	status     *StatusStore
	log        *slog.Logger
	metrics    *metrics.Metrics
	staleAfter time.Duration
	now        func() time.Time
}

// NewHandler returns a Handler reading from status. Metrics may be nil to
// disable /metrics (e.g. in tests). Health checks fail once the last tick is
// older than staleAfter; zero disables that check.
func NewHandler(status *StatusStore, log *slog.Logger, m *metrics.Metrics, staleAfter time.Duration) *Handler {
	return &Handler{status: status, log: log, metrics: m, staleAfter: staleAfter, now: time.Now}
}

// Routes returns the status router with request logging and metrics middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(h.log))
	r.Use(metrics.RequestMiddleware(h.metrics))

	r.Get("/healthz", h.Healthz)
	r.Get("/status", h.Status)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler(func() {
			h.metrics.SetStreaming(h.status.Streaming())
		}))
	}
	return r
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.status.Current()
	if ok && h.staleAfter > 0 && h.now().Sub(snap.LastTick) > h.staleAfter {
		h.log.Warn("event loop has not ticked recently",
			slog.Time("last_tick", snap.LastTick),
			slog.Duration("stale_after", h.staleAfter))
		http.Error(w, "stale", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snap, _ := h.status.Current()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.log.Error("encode status", slog.String("error", err.Error()))
	}
}
