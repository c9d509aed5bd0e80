package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"eotracker/internal/apperrors"
	"eotracker/internal/observability"
)

// Validation limits
const (
	maxPipelineIDLength = 128
	maxUploadBytes      = 1 << 30 // 1 GiB, enforced before touching the network
	cancelTimeout       = 10 * time.Second
)

// PipelineCatalog resolves a pipeline id to its default output datatype.
type PipelineCatalog interface {
	Lookup(id string) (datatype string, ok bool)
}

// Notifier receives job lifecycle notifications. Implementations deliver
// them to the front-end; the service and its collaborators only emit.
type Notifier interface {
	StateChanged(j *Job, from State)
	Imported(j *Job)
	Warning(j *Job, message string)
	Failed(j *Job)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) StateChanged(*Job, State) {}
func (NopNotifier) Imported(*Job)            {}
func (NopNotifier) Warning(*Job, string)     {}
func (NopNotifier) Failed(*Job)              {}

// Service coordinates submissions and user commands against the remote
// platform and the job store. Polling and result import are driven by
// their own components; the service only handles the synchronous paths.
type Service struct {
	remote   Remote
	store    Store
	catalog  PipelineCatalog
	metrics  *observability.Metrics
	notifier Notifier
}

// NewService creates a new job service.
func NewService(remote Remote, store Store, catalog PipelineCatalog, metrics *observability.Metrics, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		remote:   remote,
		store:    store,
		catalog:  catalog,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Login establishes the remote platform session.
func (s *Service) Login(ctx context.Context, username, password string) error {
	if username == "" {
		return apperrors.Validation("username", "username is required")
	}
	if password == "" {
		return apperrors.Validation("password", "password is required")
	}
	if err := s.remote.Login(ctx, username, password); err != nil {
		slog.Warn("Login failed", "username", username, "error", err)
		return err
	}
	slog.Info("Login succeeded", "username", username)
	return nil
}

// SubmitAOI validates and submits a processing request over an area of
// interest, then begins tracking the returned job.
func (s *Service) SubmitAOI(ctx context.Context, req *AOIRequest) (*Job, error) {
	if err := s.validateCommon(req.Pipeline, &req.Datatype); err != nil {
		return nil, err
	}
	if err := req.Geometry.Validate(); err != nil {
		return nil, apperrors.Validation("geometry", err.Error())
	}
	if err := req.Dates.Validate(); err != nil {
		return nil, apperrors.Validation("dates", err.Error())
	}

	id, err := s.remote.SubmitAOI(ctx, req)
	if err != nil {
		slog.Error("AOI submission failed", "pipeline", req.Pipeline, "error", err)
		return nil, err
	}

	return s.track(ctx, id, KindFromAOI, req.Pipeline, req.Datatype)
}

// SubmitImagery validates and submits a processing request for a locally
// staged raster, then begins tracking the returned job.
func (s *Service) SubmitImagery(ctx context.Context, req *ImageryRequest) (*Job, error) {
	if err := s.validateCommon(req.Pipeline, &req.Datatype); err != nil {
		return nil, err
	}
	if req.FilePath == "" {
		return nil, apperrors.Validation("file", "imagery file is required")
	}
	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, apperrors.Validation("file", fmt.Sprintf("imagery file not readable: %v", err))
	}
	if info.Size() > maxUploadBytes {
		return nil, apperrors.Validation("file", fmt.Sprintf("imagery file is %d MB, maximum is 1024 MB", info.Size()>>20))
	}

	id, err := s.remote.SubmitImagery(ctx, req)
	if err != nil {
		slog.Error("Imagery submission failed", "pipeline", req.Pipeline, "error", err)
		return nil, err
	}

	return s.track(ctx, id, KindFromImagery, req.Pipeline, req.Datatype)
}

// track records a freshly submitted job in the store.
func (s *Service) track(ctx context.Context, id string, kind Kind, pipeline, datatype string) (*Job, error) {
	j := &Job{
		ID:          id,
		Kind:        kind,
		Pipeline:    pipeline,
		Datatype:    datatype,
		State:       StateSubmitted,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.store.Add(j); err != nil {
		// The platform handed out an id we already track. A store-level
		// defect, not a user error: report loudly but keep the session up.
		slog.Error("Tracking a submitted job failed", "jobId", id, "error", err)
		return nil, apperrors.Internal("store.add", err)
	}

	if s.metrics != nil {
		s.metrics.RecordJobSubmitted(ctx, pipeline, string(kind))
	}
	s.notifier.StateChanged(j, "")
	slog.Info("Job submitted", "jobId", id, "kind", kind, "pipeline", pipeline)
	return j.Clone(), nil
}

// Get returns one tracked job.
func (s *Service) Get(id string) (*Job, error) {
	return s.store.Get(id)
}

// List returns all tracked jobs for the history view.
func (s *Service) List() []*Job {
	return s.store.ListAll()
}

// Cancel requests cancellation of an active job. The remote call is
// best-effort: the job is marked cancelled locally even if the platform
// rejects or does not support cancellation.
func (s *Service) Cancel(ctx context.Context, id string) error {
	j, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if j.State.Terminal() {
		return apperrors.Conflict("job", id, fmt.Sprintf("job already %s", j.State))
	}

	cancelCtx, cancel := context.WithTimeout(ctx, cancelTimeout)
	defer cancel()
	if err := s.remote.Cancel(cancelCtx, id); err != nil {
		slog.Warn("Remote cancel failed, marking cancelled locally", "jobId", id, "error", err)
	}

	from := j.State
	updated, err := s.store.Update(id, func(j *Job) error {
		j.State = StateCancelled
		return nil
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordJobFinished(ctx, updated.Pipeline, string(StateCancelled))
	}
	s.notifier.StateChanged(updated, from)
	slog.Info("Job cancelled", "jobId", id)
	return nil
}

// Delete removes a job from the local history. The remote platform keeps
// its own record; nothing is deleted server-side.
func (s *Service) Delete(id string) error {
	if err := s.store.Remove(id); err != nil {
		return err
	}
	slog.Info("Job removed from history", "jobId", id)
	return nil
}

// validateCommon checks the pipeline against the catalog and fills the
// datatype default.
func (s *Service) validateCommon(pipeline string, datatype *string) error {
	if pipeline == "" {
		return apperrors.Validation("pipeline", "pipeline is required")
	}
	if len(pipeline) > maxPipelineIDLength {
		return apperrors.Validation("pipeline", fmt.Sprintf("pipeline id exceeds maximum length of %d", maxPipelineIDLength))
	}
	if s.catalog != nil {
		dt, ok := s.catalog.Lookup(pipeline)
		if !ok {
			return apperrors.Validation("pipeline", fmt.Sprintf("unknown pipeline %q", pipeline))
		}
		if *datatype == "" {
			*datatype = dt
		}
	}
	return nil
}
