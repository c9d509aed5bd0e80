// Package api provides the HTTP API handlers and routing for the tracker service.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"eotracker/internal/apperrors"
	"eotracker/internal/completion"
	"eotracker/internal/health"
	"eotracker/internal/job"
	"eotracker/internal/observability"
	"eotracker/pkg/geo"
)

const (
	// maxRequestBodySize limits JSON request bodies to prevent memory exhaustion
	maxRequestBodySize = 1 << 20 // 1 MB

	// maxUploadSize caps imagery uploads, matching the platform's limit
	maxUploadSize = 1 << 30 // 1 GiB

	// multipartMemory is how much of an upload is held in memory before
	// spilling to disk
	multipartMemory = 10 << 20 // 10 MB
)

// Handler contains HTTP handlers for the tracker API
type Handler struct {
	svc        *job.Service
	completion *completion.Dispatcher
	metrics    *observability.Metrics
	health     *health.Checker
	uploadDir  string
}

// NewHandler creates a new API handler
func NewHandler(svc *job.Service, comp *completion.Dispatcher, metrics *observability.Metrics, healthChecker *health.Checker, uploadDir string) *Handler {
	return &Handler{
		svc:        svc,
		completion: comp,
		metrics:    metrics,
		health:     healthChecker,
		uploadDir:  uploadDir,
	}
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /v1/session/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req loginPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Login(r.Context(), req.Username, req.Password); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type aoiPayload struct {
	Pipeline  string       `json:"pipeline"`
	Datatype  string       `json:"datatype,omitempty"`
	BBox      *geo.BBox    `json:"bbox,omitempty"`
	Geometry  *geo.Polygon `json:"geometry,omitempty"`
	StartDate string       `json:"startDate"`
	EndDate   string       `json:"endDate"`
}

// SubmitAOI handles POST /v1/jobs/aoi
func (h *Handler) SubmitAOI(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req aoiPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var geometry geo.Polygon
	switch {
	case req.Geometry != nil:
		geometry = *req.Geometry
	case req.BBox != nil:
		if err := req.BBox.Validate(); err != nil {
			h.handleError(w, r, apperrors.Validation("bbox", err.Error()))
			return
		}
		geometry = req.BBox.Polygon()
	default:
		h.handleError(w, r, apperrors.Validation("geometry", "either geometry or bbox is required"))
		return
	}

	j, err := h.svc.SubmitAOI(r.Context(), &job.AOIRequest{
		Pipeline: req.Pipeline,
		Datatype: req.Datatype,
		Geometry: geometry,
		Dates:    geo.DateRange{Start: req.StartDate, End: req.EndDate},
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, j)
}

// SubmitImagery handles POST /v1/jobs/imagery (multipart upload)
func (h *Handler) SubmitImagery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid multipart request: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.handleError(w, r, apperrors.Validation("file", "imagery file is required"))
		return
	}
	defer file.Close()

	// Stage the upload on disk; the platform client streams it from there.
	staged, err := h.stageUpload(file, header.Filename)
	if err != nil {
		h.handleError(w, r, apperrors.Internal("api.stage_upload", err))
		return
	}
	defer os.Remove(staged)

	j, err := h.svc.SubmitImagery(r.Context(), &job.ImageryRequest{
		Pipeline:  r.FormValue("pipeline"),
		Datatype:  r.FormValue("datatype"),
		ImageType: r.FormValue("imageType"),
		FilePath:  staged,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, j)
}

func (h *Handler) stageUpload(file io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", err
	}

	ext := filepath.Ext(filename)
	out, err := os.CreateTemp(h.uploadDir, "upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// ListJobs handles GET /v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.svc.List()
	h.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// GetJob handles GET /v1/jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	j, err := h.svc.Get(jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, j)
}

// DeleteJob handles DELETE /v1/jobs/{jobId}.
// An active job is cancelled; a terminal job is removed from the local
// history.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	j, err := h.svc.Get(jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if j.State.Terminal() {
		err = h.svc.Delete(jobID)
	} else {
		err = h.svc.Cancel(r.Context(), jobID)
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RetryImport handles POST /v1/jobs/{jobId}/import - manual import retry.
func (h *Handler) RetryImport(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if h.completion == nil {
		h.handleError(w, r, apperrors.Unavailable("api.import", fmt.Errorf("completion dispatcher not configured")))
		return
	}
	if err := h.completion.Retry(jobID); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if the remote platform is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
