package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"eotracker/internal/apperrors"
	"eotracker/internal/job"
	"eotracker/internal/store"
	"eotracker/internal/testutil"
)

// fakeRemote serves scripted status answers per job id.
type fakeRemote struct {
	mu       sync.Mutex
	statuses map[string][]statusAnswer
	calls    map[string]int
	entered  chan struct{}
	release  chan struct{}
}

type statusAnswer struct {
	status *job.RemoteStatus
	err    error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		statuses: make(map[string][]statusAnswer),
		calls:    make(map[string]int),
	}
}

func (f *fakeRemote) script(id string, answers ...statusAnswer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = answers
}

func (f *fakeRemote) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeRemote) Status(ctx context.Context, id string) (*job.RemoteStatus, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[id]
	f.calls[id] = n + 1

	answers := f.statuses[id]
	if len(answers) == 0 {
		return &job.RemoteStatus{State: job.StateRunning}, nil
	}
	if n >= len(answers) {
		n = len(answers) - 1
	}
	a := answers[n]
	return a.status, a.err
}

func (f *fakeRemote) Login(context.Context, string, string) error { return nil }
func (f *fakeRemote) SubmitAOI(context.Context, *job.AOIRequest) (string, error) {
	return "", nil
}
func (f *fakeRemote) SubmitImagery(context.Context, *job.ImageryRequest) (string, error) {
	return "", nil
}
func (f *fakeRemote) Cancel(context.Context, string) error { return nil }
func (f *fakeRemote) Download(context.Context, string, string) (string, error) {
	return "", nil
}
func (f *fakeRemote) Ready(context.Context) error { return nil }

// fakeSink records terminal jobs handed over by the poller.
type fakeSink struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeSink) Enqueue(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func (f *fakeSink) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu       sync.Mutex
	changes  []string
	warnings []string
}

func (n *recordingNotifier) StateChanged(j *job.Job, from job.State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, string(from)+"->"+string(j.State))
}

func (n *recordingNotifier) Warning(j *job.Job, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, msg)
}

func (n *recordingNotifier) Imported(*job.Job) {}
func (n *recordingNotifier) Failed(*job.Job)   {}

func (n *recordingNotifier) warningCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.warnings)
}

func seedJob(t *testing.T, s *store.Store, id string) {
	t.Helper()
	err := s.Add(&job.Job{
		ID:          id,
		Kind:        job.KindFromAOI,
		Pipeline:    "burned_area",
		State:       job.StateSubmitted,
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
}

func TestPollLifecycle(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.script("J-1",
		statusAnswer{status: &job.RemoteStatus{State: job.StateRunning}},
		statusAnswer{status: &job.RemoteStatus{State: job.StateRunning}},
		statusAnswer{status: &job.RemoteStatus{State: job.StateSucceeded, ResultHandle: "J-1"}},
	)

	s := store.New()
	seedJob(t, s, "J-1")
	sink := &fakeSink{}
	notifier := &recordingNotifier{}

	p := New(remote, s, sink, notifier, nil, Config{})
	ctx := context.Background()

	for range 3 {
		p.cycle(ctx)
	}

	j, err := s.Get("J-1")
	if err != nil {
		t.Fatal(err)
	}
	if j.State != job.StateSucceeded {
		t.Errorf("state = %s, want succeeded", j.State)
	}
	if j.ResultHandle != "J-1" {
		t.Errorf("resultHandle = %q", j.ResultHandle)
	}
	if j.LastPolledAt.IsZero() {
		t.Error("lastPolledAt not set")
	}

	if got := sink.enqueued(); len(got) != 1 || got[0] != "J-1" {
		t.Errorf("sink got %v, want exactly one enqueue of J-1", got)
	}

	want := []string{"submitted->running", "running->succeeded"}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.changes) != len(want) {
		t.Fatalf("changes = %v, want %v", notifier.changes, want)
	}
	for i := range want {
		if notifier.changes[i] != want[i] {
			t.Errorf("change[%d] = %s, want %s", i, notifier.changes[i], want[i])
		}
	}
}

func TestPollSucceededJobNotPolledAgain(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.script("J-1",
		statusAnswer{status: &job.RemoteStatus{State: job.StateSucceeded, ResultHandle: "J-1"}},
	)

	s := store.New()
	seedJob(t, s, "J-1")
	sink := &fakeSink{}
	p := New(remote, s, sink, nil, nil, Config{})

	for range 3 {
		p.cycle(context.Background())
	}

	if got := remote.callCount("J-1"); got != 1 {
		t.Errorf("terminal job polled %d times, want 1", got)
	}
	if got := sink.enqueued(); len(got) != 1 {
		t.Errorf("sink got %v, want exactly one enqueue", got)
	}
}

func TestPollFailureThreshold(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.script("J-1",
		statusAnswer{err: apperrors.Unavailable("platform.status", context.DeadlineExceeded)},
	)

	s := store.New()
	seedJob(t, s, "J-1")
	notifier := &recordingNotifier{}

	p := New(remote, s, nil, notifier, nil, Config{FailureThreshold: 3})
	ctx := context.Background()

	// Two failures: no warning yet, job unchanged.
	p.cycle(ctx)
	p.cycle(ctx)
	j, _ := s.Get("J-1")
	if j.Warning != "" {
		t.Errorf("warning set after %d failures: %q", 2, j.Warning)
	}
	if notifier.warningCount() != 0 {
		t.Error("warning notified before threshold")
	}

	// Third failure crosses the threshold.
	p.cycle(ctx)
	j, _ = s.Get("J-1")
	if j.Warning == "" {
		t.Error("warning not set at threshold")
	}
	if j.State != job.StateSubmitted {
		t.Errorf("state = %s, poll failures must not change state", j.State)
	}
	if notifier.warningCount() != 1 {
		t.Errorf("warning notified %d times, want 1", notifier.warningCount())
	}

	// Past the threshold the job sits in its backoff window, so the next
	// cycle skips it.
	p.cycle(ctx)
	if got := remote.callCount("J-1"); got != 3 {
		t.Errorf("remote polled %d times, want 3 (backoff skip)", got)
	}
	if notifier.warningCount() != 1 {
		t.Error("warning must fire only once at the threshold")
	}
}

func TestPollSuccessClearsWarning(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.script("J-1",
		statusAnswer{err: apperrors.Unavailable("platform.status", context.DeadlineExceeded)},
		statusAnswer{status: &job.RemoteStatus{State: job.StateRunning}},
	)

	s := store.New()
	seedJob(t, s, "J-1")

	p := New(remote, s, nil, nil, nil, Config{FailureThreshold: 1})
	ctx := context.Background()

	p.cycle(ctx)
	j, _ := s.Get("J-1")
	if j.Warning == "" {
		t.Fatal("warning not set at threshold")
	}

	// Backoff window: wait it out so the next cycle polls again.
	p.mu.Lock()
	p.nextPoll["J-1"] = time.Now().Add(-time.Second)
	p.mu.Unlock()

	p.cycle(ctx)
	j, _ = s.Get("J-1")
	if j.Warning != "" {
		t.Errorf("warning = %q, want cleared after successful poll", j.Warning)
	}
	if j.State != job.StateRunning {
		t.Errorf("state = %s, want running", j.State)
	}
}

func TestPollNotFoundFailsJob(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.script("J-1", statusAnswer{err: apperrors.NotFound("job", "J-1")})

	s := store.New()
	seedJob(t, s, "J-1")
	sink := &fakeSink{}

	p := New(remote, s, sink, nil, nil, Config{})
	p.cycle(context.Background())

	j, _ := s.Get("J-1")
	if j.State != job.StateFailed {
		t.Errorf("state = %s, want failed", j.State)
	}
	if j.ErrorDetail == "" {
		t.Error("errorDetail not set")
	}
	if got := sink.enqueued(); len(got) != 1 {
		t.Errorf("sink got %v, want the failed job", got)
	}
}

func TestPollReentrancyGuard(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.entered = make(chan struct{})
	remote.release = make(chan struct{})

	s := store.New()
	seedJob(t, s, "J-1")

	p := New(remote, s, nil, nil, nil, Config{})
	ctx := context.Background()

	go p.poll(ctx)
	<-remote.entered // first cycle is mid-poll

	if p.poll(ctx) {
		t.Error("second cycle ran while the first was in flight")
	}

	close(remote.release)
	testutil.MustWaitFor(t, func() bool {
		return !p.inFlight.Load()
	}, testutil.WithTimeout(time.Second))
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.script("J-1",
		statusAnswer{status: &job.RemoteStatus{State: job.StateSucceeded, ResultHandle: "J-1"}},
	)

	s := store.New()
	seedJob(t, s, "J-1")
	sink := &fakeSink{}

	p := New(remote, s, sink, nil, nil, Config{Interval: 10 * time.Millisecond})
	p.Start(context.Background())

	testutil.MustWaitFor(t, func() bool {
		j, err := s.Get("J-1")
		return err == nil && j.State == job.StateSucceeded
	}, testutil.WithTimeout(time.Second), testutil.WithInterval(5*time.Millisecond))
	p.Stop()
}
