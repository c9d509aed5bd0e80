package history

import (
	"path/filepath"
	"testing"
	"time"

	"eotracker/internal/job"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	submitted := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	jobs := []*job.Job{
		{
			ID:          "J-1",
			Kind:        job.KindFromAOI,
			Pipeline:    "burned_area",
			Datatype:    "dt-burned",
			State:       job.StateRunning,
			SubmittedAt: submitted,
		},
		{
			ID:           "J-2",
			Kind:         job.KindFromImagery,
			Pipeline:     "flame_detection",
			State:        job.StateSucceeded,
			SubmittedAt:  submitted.Add(time.Minute),
			ResultHandle: "J-2",
			Imported:     true,
			ImportedPath: "layers/J-2/flames.gpkg",
		},
	}

	if err := s.SaveSnapshot(jobs); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d jobs, want 2", len(loaded))
	}

	if loaded[0].ID != "J-1" || loaded[1].ID != "J-2" {
		t.Errorf("order = %s, %s; want J-1, J-2", loaded[0].ID, loaded[1].ID)
	}
	if loaded[0].State != job.StateRunning {
		t.Errorf("state = %s", loaded[0].State)
	}
	if !loaded[0].SubmittedAt.Equal(submitted) {
		t.Errorf("submittedAt = %v, want %v", loaded[0].SubmittedAt, submitted)
	}
	if !loaded[1].Imported || loaded[1].ImportedPath != "layers/J-2/flames.gpkg" {
		t.Errorf("import fields lost: %+v", loaded[1])
	}
}

func TestSnapshotReplacesPrevious(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	now := time.Now().UTC()

	first := []*job.Job{
		{ID: "J-1", Kind: job.KindFromAOI, State: job.StateRunning, SubmittedAt: now},
		{ID: "J-2", Kind: job.KindFromAOI, State: job.StateRunning, SubmittedAt: now},
	}
	if err := s.SaveSnapshot(first); err != nil {
		t.Fatal(err)
	}

	// J-2 was deleted from the session; the next snapshot drops it.
	second := []*job.Job{
		{ID: "J-1", Kind: job.KindFromAOI, State: job.StateSucceeded, SubmittedAt: now, ResultHandle: "J-1"},
	}
	if err := s.SaveSnapshot(second); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d jobs, want 1", len(loaded))
	}
	if loaded[0].State != job.StateSucceeded {
		t.Errorf("state = %s, want succeeded", loaded[0].State)
	}
}

func TestLoadEmpty(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d jobs from empty database", len(loaded))
	}
}

func TestReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	jobs := []*job.Job{
		{ID: "J-1", Kind: job.KindFromAOI, State: job.StateFailed, ErrorDetail: "no imagery found", SubmittedAt: time.Now().UTC()},
	}
	if err := s.SaveSnapshot(jobs); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].ErrorDetail != "no imagery found" {
		t.Errorf("loaded = %+v", loaded)
	}
}
