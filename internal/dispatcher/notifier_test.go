package dispatcher

import (
	"context"
	"sync"
	"testing"

	"eotracker/internal/job"
)

// captureDispatcher records dispatched events without delivering them.
type captureDispatcher struct {
	mu     sync.Mutex
	events []*Event
}

func (c *captureDispatcher) Dispatch(event *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureDispatcher) Stats() Stats                    { return Stats{} }
func (c *captureDispatcher) Close(ctx context.Context) error { return nil }

func (c *captureDispatcher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Payload.Type
	}
	return out
}

func TestNotifierBuildsEvents(t *testing.T) {
	t.Parallel()

	capture := &captureDispatcher{}
	n := NewNotifier(capture, "http://localhost:9999/events", "secret")

	j := &job.Job{
		ID:           "J-1",
		State:        job.StateSucceeded,
		Datatype:     "dt-burned",
		ImportedPath: "layers/J-1/result.tif",
	}

	n.StateChanged(j, job.StateRunning)
	n.Imported(j)
	n.Warning(j, "status checks are failing")
	n.Failed(&job.Job{ID: "J-2", State: job.StateFailed, ErrorDetail: "no imagery found"})

	want := []string{
		job.EventTypeState,
		job.EventTypeImported,
		job.EventTypeWarning,
		job.EventTypeFailed,
	}
	got := capture.types()
	if len(got) != len(want) {
		t.Fatalf("dispatched %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	capture.mu.Lock()
	defer capture.mu.Unlock()
	first := capture.events[0]
	if first.Destination != "http://localhost:9999/events" {
		t.Errorf("destination = %q", first.Destination)
	}
	if first.SigningKey != "secret" {
		t.Errorf("signingKey = %q", first.SigningKey)
	}
	if first.Payload.Subject != "J-1" {
		t.Errorf("subject = %q", first.Payload.Subject)
	}
}

func TestNotifierWithoutDestination(t *testing.T) {
	t.Parallel()

	capture := &captureDispatcher{}
	n := NewNotifier(capture, "", "")

	n.StateChanged(&job.Job{ID: "J-1", State: job.StateRunning}, job.StateSubmitted)

	if got := capture.types(); len(got) != 0 {
		t.Errorf("dispatched %v without a configured callback", got)
	}
}
