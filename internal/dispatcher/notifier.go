package dispatcher

import (
	"log/slog"

	"eotracker/internal/job"
	"eotracker/pkg/cloudevent"
)

const eventSource = "eotracker"

// Notifier translates job lifecycle notifications into CloudEvents and
// hands them to a dispatcher for delivery to the front-end callback.
// With no callback configured every notification is a no-op.
type Notifier struct {
	dispatcher  Dispatcher
	destination string
	signingKey  string
	logger      *slog.Logger
}

// NewNotifier creates a notifier delivering to the given callback URL.
func NewNotifier(d Dispatcher, destination, signingKey string) *Notifier {
	return &Notifier{
		dispatcher:  d,
		destination: destination,
		signingKey:  signingKey,
		logger:      slog.With("component", "notifier"),
	}
}

// StateChanged emits a state-change event.
func (n *Notifier) StateChanged(j *job.Job, from job.State) {
	n.send(j.ID, job.NewEventBuilder(j.ID, eventSource).BuildStateEvent(from, j.State))
}

// Imported emits the import-completed event.
func (n *Notifier) Imported(j *job.Job) {
	n.send(j.ID, job.NewEventBuilder(j.ID, eventSource).BuildImportedEvent(j.ImportedPath, j.Datatype))
}

// Warning emits a non-fatal warning event.
func (n *Notifier) Warning(j *job.Job, message string) {
	n.send(j.ID, job.NewEventBuilder(j.ID, eventSource).BuildWarningEvent(message))
}

// Failed emits the one-time failure event.
func (n *Notifier) Failed(j *job.Job) {
	n.send(j.ID, job.NewEventBuilder(j.ID, eventSource).BuildFailedEvent(j.ErrorDetail))
}

func (n *Notifier) send(jobID string, event *cloudevent.CloudEvent) {
	if n.destination == "" || n.dispatcher == nil {
		return
	}
	err := n.dispatcher.Dispatch(&Event{
		Payload:     event,
		Destination: n.destination,
		SigningKey:  n.signingKey,
	})
	if err != nil {
		n.logger.Warn("Dispatching job event failed", "jobId", jobID, "type", event.Type, "error", err)
	}
}

// Verify Notifier implements the job.Notifier contract.
var _ job.Notifier = (*Notifier)(nil)
