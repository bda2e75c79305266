package core

import "time"

// SessionState tracks a live session's lifecycle as seen by the orchestrator
type SessionState string

const (
	// StateDisconnected means no transport exists
	StateDisconnected SessionState = "disconnected"

	// StateConnecting means the transport is being opened
	StateConnecting SessionState = "connecting"

	// StateConnected means the transport is open but setup is not yet acknowledged
	StateConnected SessionState = "connected"

	// StateReady means the setup handshake has been acknowledged
	StateReady SessionState = "ready"

	// StateErrored is terminal for the attempt; the orchestrator may still retry
	StateErrored SessionState = "errored"
)

// Role identifies the author of a transcript message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in the in-memory session transcript.
// The transcript is append-only and is discarded on teardown.
type Message struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time
}

// VideoSourceState identifies which video capture source is active
type VideoSourceState string

const (
	VideoSourceNone   VideoSourceState = "none"
	VideoSourceWebcam VideoSourceState = "webcam"
	VideoSourceScreen VideoSourceState = "screen"
)

// Part is one piece of model-turn content: text or inline media
type Part struct {
	Text       string
	InlineData *InlineData
}

// InlineData carries base64-encoded media tagged with a MIME type
type InlineData struct {
	MIMEType string
	Data     string
}

// LogEntry is a structured client log record surfaced to listeners
type LogEntry struct {
	Date    time.Time
	Type    string
	Message string
}
