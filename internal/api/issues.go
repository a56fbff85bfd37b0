package api

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helmcode/k8s-ai-monitor/internal/tracker"
	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

// IssuesResponse is the wire format for GET /api/v1/issues.
type IssuesResponse struct {
	Issues []types.IssueState `json:"issues"`
}

// IssuesHandler handles GET /api/v1/issues. It serves the tracker's
// current active issue set, optionally filtered by cluster or
// namespace query parameters.
type IssuesHandler struct {
	logger  *zap.Logger
	tracker *tracker.Tracker
}

// NewIssuesHandler creates a new IssuesHandler.
func NewIssuesHandler(tr *tracker.Tracker, logger *zap.Logger) *IssuesHandler {
	return &IssuesHandler{
		logger:  logger.Named("issues"),
		tracker: tr,
	}
}

// ServeHTTP implements http.Handler.
func (h *IssuesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cluster := r.URL.Query().Get("cluster")
	namespace := r.URL.Query().Get("namespace")

	var states []types.IssueState
	if cluster != "" {
		states = h.tracker.ActiveForCluster(cluster)
	} else {
		states = h.tracker.Active()
	}

	if namespace != "" {
		filtered := states[:0]
		for _, st := range states {
			if st.Key.Namespace == namespace {
				filtered = append(filtered, st)
			}
		}
		states = filtered
	}

	if states == nil {
		states = []types.IssueState{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(IssuesResponse{Issues: states}); err != nil {
		h.logger.Error("Failed to encode issues response", zap.Error(err))
	}
}

// HealthHandler handles GET /healthz. It reports liveness only; a
// cluster that cannot be polled still counts as a live process.
type HealthHandler struct{}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// NewMux builds the status server's mux: active issues, health probe,
// and Prometheus metrics on a single listener.
func NewMux(tr *tracker.Tracker, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/issues", NewIssuesHandler(tr, logger))
	mux.Handle("/healthz", &HealthHandler{})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
