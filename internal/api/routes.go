package api

import (
	"net/http"

	"eotracker/internal/completion"
	"eotracker/internal/health"
	"eotracker/internal/job"
	"eotracker/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService    *job.Service
	Completion    *completion.Dispatcher
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
	UploadDir     string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.JobService, cfg.Completion, cfg.Metrics, cfg.HealthChecker, cfg.UploadDir)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// GUI-facing endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/session/login", authMiddleware(http.HandlerFunc(handler.Login)))
	mux.Handle("POST /v1/jobs/aoi", authMiddleware(http.HandlerFunc(handler.SubmitAOI)))
	mux.Handle("POST /v1/jobs/imagery", authMiddleware(http.HandlerFunc(handler.SubmitImagery)))
	mux.Handle("GET /v1/jobs", authMiddleware(http.HandlerFunc(handler.ListJobs)))
	mux.Handle("GET /v1/jobs/{jobId}", authMiddleware(http.HandlerFunc(handler.GetJob)))
	mux.Handle("DELETE /v1/jobs/{jobId}", authMiddleware(http.HandlerFunc(handler.DeleteJob)))
	mux.Handle("POST /v1/jobs/{jobId}/import", authMiddleware(http.HandlerFunc(handler.RetryImport)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
