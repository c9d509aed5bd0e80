package job

import (
	"context"

	"eotracker/pkg/geo"
)

// AOIRequest holds the parameters for a submission from an area of interest.
type AOIRequest struct {
	Pipeline string        `json:"pipeline"`
	Datatype string        `json:"datatype"`
	Geometry geo.Polygon   `json:"geometry"`
	Dates    geo.DateRange `json:"dates"`
}

// ImageryRequest holds the parameters for a submission from existing
// imagery. FilePath points at a raster already staged on local disk.
type ImageryRequest struct {
	Pipeline  string `json:"pipeline"`
	Datatype  string `json:"datatype"`
	ImageType string `json:"imageType"`
	FilePath  string `json:"-"`
}

// RemoteStatus is the platform's answer to a status query, normalized to
// the tracker's state vocabulary.
type RemoteStatus struct {
	State State

	// Detail is the platform's progress or error message.
	Detail string

	// ResultHandle is present once the output artifact is downloadable.
	ResultHandle string

	// Datatype identifies the output layer type, when the platform
	// reports one.
	Datatype string
}

// Remote is the client contract for the processing platform.
//
// Implementations classify failures through the apperrors sentinels:
// connectivity problems are ErrUnavailable, a vanished job is ErrNotFound,
// rejected credentials are ErrAuth. The poll scheduler relies on that
// classification to decide between retrying and failing a job.
type Remote interface {
	// Login establishes a platform session for the given credentials.
	Login(ctx context.Context, username, password string) error

	// SubmitAOI requests processing over an area of interest and returns
	// the platform-assigned job id.
	SubmitAOI(ctx context.Context, req *AOIRequest) (string, error)

	// SubmitImagery uploads a local raster for processing and returns
	// the platform-assigned job id.
	SubmitImagery(ctx context.Context, req *ImageryRequest) (string, error)

	// Status queries the current remote status of a job.
	Status(ctx context.Context, id string) (*RemoteStatus, error)

	// Cancel requests cancellation. Best-effort: the platform may not
	// support it, and callers mark the job cancelled locally regardless.
	Cancel(ctx context.Context, id string) error

	// Download fetches the output artifact for a result handle into dir
	// and returns the written file path.
	Download(ctx context.Context, handle, dir string) (string, error)

	// Ready checks the platform is reachable and the session usable.
	Ready(ctx context.Context) error
}

// Store is the authoritative record of all jobs known to this session.
// Mutations are serialized by the implementation.
type Store interface {
	// Add inserts a new job. ErrConflict if the id is already present.
	Add(j *Job) error

	// Get returns a copy of the job. ErrNotFound if absent.
	Get(id string) (*Job, error)

	// Update applies mutate to a copy of the job and commits it if the
	// resulting state change is forward-only. ErrInvalidTransition
	// rejections leave the job unchanged. Returns the committed job.
	Update(id string, mutate func(*Job) error) (*Job, error)

	// ListActive returns jobs not yet in a terminal state.
	ListActive() []*Job

	// ListAll returns every job, ordered by submission time.
	ListAll() []*Job

	// Remove deletes a job record locally. ErrNotFound if absent.
	Remove(id string) error
}
