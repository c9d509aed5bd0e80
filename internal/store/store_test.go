package store

import (
	"errors"
	"testing"
	"time"

	"eotracker/internal/apperrors"
	"eotracker/internal/job"
)

func newJob(id string, state job.State) *job.Job {
	return &job.Job{
		ID:          id,
		Kind:        job.KindFromAOI,
		Pipeline:    "burned_area",
		State:       state,
		SubmittedAt: time.Now().UTC(),
	}
}

func TestAddDuplicate(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.Add(newJob("J-1", job.StateSubmitted)); err != nil {
		t.Fatalf("first Add: %v", err)
	}

	dup := newJob("J-1", job.StateRunning)
	dup.Pipeline = "flame_detection"
	err := s.Add(dup)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// The original record is untouched.
	got, err := s.Get("J-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Pipeline != "burned_area" || got.State != job.StateSubmitted {
		t.Errorf("store content changed by failed Add: %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	s := New()
	if _, err := s.Get("J-404"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateForwardOnly(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.Add(newJob("J-1", job.StateSubmitted)); err != nil {
		t.Fatal(err)
	}

	// Submitted -> Running -> Succeeded is a valid path.
	if _, err := s.Update("J-1", setState(job.StateRunning)); err != nil {
		t.Fatalf("to running: %v", err)
	}
	if _, err := s.Update("J-1", func(j *job.Job) error {
		j.State = job.StateSucceeded
		j.ResultHandle = "R-1"
		return nil
	}); err != nil {
		t.Fatalf("to succeeded: %v", err)
	}

	// Any attempt to leave a terminal state fails and leaves the job unchanged.
	for _, to := range []job.State{job.StateRunning, job.StateFailed, job.StateCancelled, job.StateSubmitted} {
		_, err := s.Update("J-1", setState(to))
		if !errors.Is(err, apperrors.ErrInvalidTransition) {
			t.Errorf("succeeded -> %s: expected invalid transition, got %v", to, err)
		}
	}

	got, _ := s.Get("J-1")
	if got.State != job.StateSucceeded || got.ResultHandle != "R-1" {
		t.Errorf("job changed by rejected updates: %+v", got)
	}
}

func TestUpdateBackwardRejected(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.Add(newJob("J-1", job.StateRunning)); err != nil {
		t.Fatal(err)
	}

	_, err := s.Update("J-1", setState(job.StateSubmitted))
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestResultHandleOnlyWhenSucceeded(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.Add(newJob("J-1", job.StateSubmitted)); err != nil {
		t.Fatal(err)
	}

	_, err := s.Update("J-1", func(j *job.Job) error {
		j.State = job.StateRunning
		j.ResultHandle = "R-1"
		return nil
	})
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("result handle on a running job should be rejected, got %v", err)
	}
}

func TestImportedInvariants(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.Add(newJob("J-1", job.StateRunning)); err != nil {
		t.Fatal(err)
	}

	// imported=true while not succeeded is rejected.
	_, err := s.Update("J-1", func(j *job.Job) error {
		j.Imported = true
		return nil
	})
	if err == nil {
		t.Fatal("imported on a running job should be rejected")
	}

	if _, err := s.Update("J-1", func(j *job.Job) error {
		j.State = job.StateSucceeded
		j.ResultHandle = "R-1"
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Update("J-1", func(j *job.Job) error {
		j.Imported = true
		j.ImportedPath = "/layers/J-1/result.tif"
		return nil
	}); err != nil {
		t.Fatalf("first import mark: %v", err)
	}

	// Clearing the flag is rejected.
	_, err = s.Update("J-1", func(j *job.Job) error {
		j.Imported = false
		return nil
	})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("clearing imported should conflict, got %v", err)
	}

	// Re-importing to a different path is rejected.
	_, err = s.Update("J-1", func(j *job.Job) error {
		j.ImportedPath = "/layers/J-1/other.tif"
		return nil
	})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("second import should conflict, got %v", err)
	}
}

func TestListActiveAndAll(t *testing.T) {
	t.Parallel()

	s := New()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, st := range []job.State{job.StateSubmitted, job.StateRunning, job.StateSucceeded, job.StateFailed} {
		j := newJob(string(rune('A'+i)), st)
		j.SubmittedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.Add(j); err != nil {
			t.Fatal(err)
		}
	}

	active := s.ListActive()
	if len(active) != 2 {
		t.Fatalf("ListActive returned %d jobs, want 2", len(active))
	}

	all := s.ListAll()
	if len(all) != 4 {
		t.Fatalf("ListAll returned %d jobs, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].SubmittedAt.Before(all[i-1].SubmittedAt) {
			t.Error("ListAll is not ordered by submission time")
		}
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.Add(newJob("J-1", job.StateSucceeded)); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("J-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("J-1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second remove: expected not found, got %v", err)
	}
}

func TestSnapshotListener(t *testing.T) {
	t.Parallel()

	s := New()
	var snapshots [][]*job.Job
	s.OnChange(func(jobs []*job.Job) {
		snapshots = append(snapshots, jobs)
	})

	if err := s.Add(newJob("J-1", job.StateSubmitted)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Update("J-1", setState(job.StateRunning)); err != nil {
		t.Fatal(err)
	}

	if len(snapshots) != 2 {
		t.Fatalf("listener invoked %d times, want 2", len(snapshots))
	}
	last := snapshots[len(snapshots)-1]
	if len(last) != 1 || last[0].State != job.StateRunning {
		t.Errorf("unexpected final snapshot: %+v", last)
	}
}

func TestLoadSkipsExisting(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.Add(newJob("J-1", job.StateRunning)); err != nil {
		t.Fatal(err)
	}

	stale := newJob("J-1", job.StateSubmitted)
	fresh := newJob("J-2", job.StateSucceeded)
	fresh.ResultHandle = "R-2"
	s.Load([]*job.Job{stale, fresh})

	got, _ := s.Get("J-1")
	if got.State != job.StateRunning {
		t.Error("Load overwrote a live record")
	}
	if _, err := s.Get("J-2"); err != nil {
		t.Errorf("Load should add new records: %v", err)
	}
}

func setState(to job.State) func(*job.Job) error {
	return func(j *job.Job) error {
		j.State = to
		return nil
	}
}
