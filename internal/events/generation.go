package events

import "time"

// Entity types used on generation lifecycle events.
const (
	EntitySession = "session"
	EntityBackend = "backend"
	EntityServer  = "server"
)

// GenerationStarted is the payload for EventTypeGenerationStarted.
type GenerationStarted struct {
	SessionID string
	Operation string
}

// BackendAttempt is the payload for EventTypeBackendAttempt. Kind and
// Message are empty on success.
type BackendAttempt struct {
	SessionID string
	Backend   string
	Duration  time.Duration
	Success   bool
	Kind      string
	Message   string
}

// GenerationCompleted is the payload for EventTypeGenerationCompleted.
type GenerationCompleted struct {
	SessionID string
	Backend   string
	Filename  string
	Summary   string
}

// GenerationFailed is the payload for EventTypeGenerationFailed, published
// after every candidate backend has been tried.
type GenerationFailed struct {
	SessionID string
	Attempted []string
	Kind      string
	Message   string
}

// GameSaved is the payload for EventTypeGameSaved.
type GameSaved struct {
	Project  string
	Filename string
	Path     string
}
