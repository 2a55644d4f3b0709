package inference

// Lifecycle event names, in the order a request moves through them.
const (
	EventReceived            = "received"
	EventAvailabilityChecked = "availability_checked"
	EventUnavailable         = "unavailable"
	EventSessionCreated      = "session_created"
	EventBackendInvoked      = "backend_invoked"
	EventSucceeded           = "succeeded"
	EventFailed              = "failed"
)

// Event represents one step of a generation request.
// Minimal and stable: name + session ID and optional fields via key/values.
type Event struct {
	Name      string
	SessionID string
	Fields    map[string]any
}

// EventPublisher receives events from the coordinator. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
