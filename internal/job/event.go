package job

import (
	"eotracker/pkg/cloudevent"

	"github.com/google/uuid"
)

// Event types for job lifecycle notifications delivered to the front-end.
const (
	EventTypeState    = "tracker.job.state"
	EventTypeImported = "tracker.job.imported"
	EventTypeWarning  = "tracker.job.warning"
	EventTypeFailed   = "tracker.job.failed"
)

// EventBuilder builds CloudEvents for one job's lifecycle.
type EventBuilder struct {
	source  string
	subject string
}

// NewEventBuilder creates an EventBuilder for a job.
func NewEventBuilder(jobID, source string) *EventBuilder {
	return &EventBuilder{
		source:  source,
		subject: jobID,
	}
}

// Build creates a CloudEvent with the given type and data.
func (b *EventBuilder) Build(eventType string, data map[string]any) *cloudevent.CloudEvent {
	return cloudevent.New(eventType, b.source, b.subject, uuid.NewString(), data)
}

// BuildStateEvent creates a state-change event.
func (b *EventBuilder) BuildStateEvent(from, to State) *cloudevent.CloudEvent {
	return b.Build(EventTypeState, map[string]any{
		"jobId": b.subject,
		"from":  string(from),
		"state": string(to),
	})
}

// BuildImportedEvent creates an import-completed event.
func (b *EventBuilder) BuildImportedEvent(layerPath, datatype string) *cloudevent.CloudEvent {
	return b.Build(EventTypeImported, map[string]any{
		"jobId":     b.subject,
		"layerPath": layerPath,
		"datatype":  datatype,
	})
}

// BuildWarningEvent creates a non-fatal warning event.
func (b *EventBuilder) BuildWarningEvent(message string) *cloudevent.CloudEvent {
	return b.Build(EventTypeWarning, map[string]any{
		"jobId":   b.subject,
		"message": message,
	})
}

// BuildFailedEvent creates the one-time failure notification.
func (b *EventBuilder) BuildFailedEvent(detail string) *cloudevent.CloudEvent {
	return b.Build(EventTypeFailed, map[string]any{
		"jobId": b.subject,
		"error": detail,
	})
}
