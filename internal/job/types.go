// Package job defines the tracked job record, its state machine, and the
// interfaces the coordinator consumes (remote platform, store).
package job

import "time"

// Kind distinguishes how a job was submitted. It affects which parameters
// were sent to the platform, not how the job is tracked.
type Kind string

const (
	KindFromAOI     Kind = "from_aoi"
	KindFromImagery Kind = "from_imagery"
)

// Valid reports whether the kind is one of the known submission kinds.
func (k Kind) Valid() bool {
	return k == KindFromAOI || k == KindFromImagery
}

// State is a job's position in its lifecycle.
type State string

const (
	StateSubmitted State = "submitted"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition may occur from s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateSubmitted, StateRunning, StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// rank orders states along the forward-only path. Terminal states share a
// rank but are mutually unreachable.
func (s State) rank() int {
	switch s {
	case StateSubmitted:
		return 0
	case StateRunning:
		return 1
	default:
		return 2
	}
}

// CanTransition reports whether a job may move from one state to another.
// Staying in the same state is always allowed (repeated polls observe the
// same remote status); terminal states admit no other successor.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	return to.rank() >= from.rank()
}

// Job is one remote processing request and its tracked lifecycle state.
//
// A Job is created after a successful submission call, mutated by the poll
// scheduler (state, timestamps) and the completion dispatcher (import
// fields), and removed only by explicit user action.
type Job struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Pipeline     string    `json:"pipeline,omitempty"`
	Datatype     string    `json:"datatype,omitempty"`
	State        State     `json:"state"`
	SubmittedAt  time.Time `json:"submittedAt"`
	LastPolledAt time.Time `json:"lastPolledAt,omitzero"`

	// ResultHandle is the opaque reference for fetching the output
	// artifact; set if and only if the job succeeded.
	ResultHandle string `json:"resultHandle,omitempty"`

	// Imported flips to true exactly once, when the result has been
	// handed to the layer importer.
	Imported     bool   `json:"imported"`
	ImportedPath string `json:"importedPath,omitempty"`

	// ErrorDetail is set only for failed jobs.
	ErrorDetail string `json:"errorDetail,omitempty"`

	// Warning carries a non-fatal condition (poll failures past the
	// threshold, a failed import awaiting manual retry).
	Warning string `json:"warning,omitempty"`
}

// Clone returns a copy safe to hand outside the store.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}

// Active reports whether the job still needs polling.
func (j *Job) Active() bool {
	return !j.State.Terminal()
}
