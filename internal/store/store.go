// Package store holds the authoritative in-memory record of tracked jobs.
//
// All mutations funnel through one mutex, which is the serialization
// point for poll responses, completion updates, and user commands. A
// snapshot listener lets persistence trail the store without taking part
// in its locking.
package store

import (
	"log/slog"
	"sort"
	"sync"

	"eotracker/internal/apperrors"
	"eotracker/internal/job"
)

// SnapshotFunc receives a copy of the full job list after each mutation.
type SnapshotFunc func(jobs []*job.Job)

// Store is an in-memory job store. The zero value is not usable; use New.
type Store struct {
	mu       sync.Mutex
	jobs     map[string]*job.Job
	snapshot SnapshotFunc
}

// New creates an empty store.
func New() *Store {
	return &Store{jobs: make(map[string]*job.Job)}
}

// OnChange registers the snapshot listener. It is invoked outside the
// store lock with a deep copy; at most one listener is supported.
func (s *Store) OnChange(fn SnapshotFunc) {
	s.mu.Lock()
	s.snapshot = fn
	s.mu.Unlock()
}

// Add inserts a new job.
func (s *Store) Add(j *job.Job) error {
	s.mu.Lock()
	if _, exists := s.jobs[j.ID]; exists {
		s.mu.Unlock()
		return apperrors.Conflict("job", j.ID, "job "+j.ID+" already tracked")
	}
	s.jobs[j.ID] = j.Clone()
	s.mu.Unlock()

	s.notify()
	return nil
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[id]
	if !exists {
		return nil, apperrors.NotFound("job", id)
	}
	return j.Clone(), nil
}

// Update applies mutate to a copy of the job and commits it when the
// result respects the forward-only lifecycle. A rejected mutation leaves
// the stored job untouched.
func (s *Store) Update(id string, mutate func(*job.Job) error) (*job.Job, error) {
	s.mu.Lock()
	current, exists := s.jobs[id]
	if !exists {
		s.mu.Unlock()
		return nil, apperrors.NotFound("job", id)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if err := validate(current, next); err != nil {
		s.mu.Unlock()
		// Invariant violations are defects; report loudly, never panic.
		slog.Error("Job store rejected mutation", "jobId", id, "error", err)
		return nil, err
	}

	s.jobs[id] = next
	committed := next.Clone()
	s.mu.Unlock()

	s.notify()
	return committed, nil
}

// ListActive returns jobs not yet in a terminal state.
func (s *Store) ListActive() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*job.Job
	for _, j := range s.jobs {
		if j.Active() {
			out = append(out, j.Clone())
		}
	}
	sortBySubmission(out)
	return out
}

// ListAll returns every tracked job, oldest submission first.
func (s *Store) ListAll() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// Remove deletes a job record. This is the history "delete selected"
// action; nothing is removed on the platform side.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	if _, exists := s.jobs[id]; !exists {
		s.mu.Unlock()
		return apperrors.NotFound("job", id)
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	s.notify()
	return nil
}

// Load seeds the store from a persisted snapshot. Existing entries win;
// intended for session start only.
func (s *Store) Load(jobs []*job.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range jobs {
		if _, exists := s.jobs[j.ID]; !exists {
			s.jobs[j.ID] = j.Clone()
		}
	}
}

func (s *Store) listLocked() []*job.Job {
	out := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sortBySubmission(out)
	return out
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.snapshot
	var jobs []*job.Job
	if fn != nil {
		jobs = s.listLocked()
	}
	s.mu.Unlock()

	if fn != nil {
		fn(jobs)
	}
}

// validate enforces the store invariants between the stored job and the
// mutated copy.
func validate(current, next *job.Job) error {
	if next.ID != current.ID {
		return apperrors.Internal("store.update", apperrors.Conflict("job", current.ID, "job id is immutable"))
	}
	if !next.State.Valid() {
		return apperrors.InvalidTransition(current.ID, string(current.State), string(next.State))
	}
	if !job.CanTransition(current.State, next.State) {
		return apperrors.InvalidTransition(current.ID, string(current.State), string(next.State))
	}
	if next.ResultHandle != "" && next.State != job.StateSucceeded {
		return apperrors.InvalidTransition(current.ID, string(current.State), string(next.State))
	}
	if next.Imported {
		if next.State != job.StateSucceeded {
			return apperrors.InvalidTransition(current.ID, string(current.State), string(next.State))
		}
		if current.Imported && next.ImportedPath != current.ImportedPath {
			return apperrors.Conflict("job", current.ID, "job result already imported")
		}
	}
	if current.Imported && !next.Imported {
		return apperrors.Conflict("job", current.ID, "imported flag cannot be cleared")
	}
	return nil
}

func sortBySubmission(jobs []*job.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].SubmittedAt.Equal(jobs[k].SubmittedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].SubmittedAt.Before(jobs[k].SubmittedAt)
	})
}

// Verify Store implements the job.Store contract.
var _ job.Store = (*Store)(nil)
