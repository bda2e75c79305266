package core

// EventType categorizes session events
type EventType string

const (
	EventTypeOpen                 EventType = "open"
	EventTypeSetupComplete        EventType = "setupcomplete"
	EventTypeAudio                EventType = "audio"
	EventTypeContent              EventType = "content"
	EventTypeTurnComplete         EventType = "turncomplete"
	EventTypeInterrupted          EventType = "interrupted"
	EventTypeToolCall             EventType = "toolcall"
	EventTypeToolCallCancellation EventType = "toolcallcancellation"
	EventTypeClose                EventType = "close"
	EventTypeError                EventType = "error"
	EventTypeLog                  EventType = "log"
	EventTypeVolume               EventType = "volume"
	EventTypeCaptureData          EventType = "data"
)

// Event represents any session event
type Event interface {
	EventType() EventType
}

// OpenEvent signals that the transport opened
type OpenEvent struct{}

func (e OpenEvent) EventType() EventType {
	return EventTypeOpen
}

// SetupCompleteEvent signals that the server acknowledged the setup frame
type SetupCompleteEvent struct{}

func (e SetupCompleteEvent) EventType() EventType {
	return EventTypeSetupComplete
}

// AudioEvent carries one inline-audio part decoded to raw PCM bytes
type AudioEvent struct {
	Data []byte
}

func (e AudioEvent) EventType() EventType {
	return EventTypeAudio
}

// ContentEvent carries the non-audio parts of one model turn
type ContentEvent struct {
	Parts []Part
}

func (e ContentEvent) EventType() EventType {
	return EventTypeContent
}

// TurnCompleteEvent signals that the model finished its turn
type TurnCompleteEvent struct{}

func (e TurnCompleteEvent) EventType() EventType {
	return EventTypeTurnComplete
}

// InterruptedEvent signals barge-in; pending playback should be flushed
type InterruptedEvent struct{}

func (e InterruptedEvent) EventType() EventType {
	return EventTypeInterrupted
}

// ToolCallEvent carries a server-initiated tool call payload
type ToolCallEvent struct {
	Payload map[string]any
}

func (e ToolCallEvent) EventType() EventType {
	return EventTypeToolCall
}

// ToolCallCancellationEvent cancels a previously issued tool call
type ToolCallCancellationEvent struct {
	Payload map[string]any
}

func (e ToolCallCancellationEvent) EventType() EventType {
	return EventTypeToolCallCancellation
}

// CloseEvent signals that the transport closed
type CloseEvent struct {
	Code   int
	Reason string
}

func (e CloseEvent) EventType() EventType {
	return EventTypeClose
}

// ErrorEvent represents a structured, non-fatal error surfaced to listeners
type ErrorEvent struct {
	Error     error
	Retryable bool
}

func (e ErrorEvent) EventType() EventType {
	return EventTypeError
}

// LogEvent mirrors the client's structured log stream for UI consumption
type LogEvent struct {
	Entry LogEntry
}

func (e LogEvent) EventType() EventType {
	return EventTypeLog
}

// VolumeEvent carries a decayed RMS level for UI metering
type VolumeEvent struct {
	Level float64
}

func (e VolumeEvent) EventType() EventType {
	return EventTypeVolume
}

// CaptureDataEvent carries one base64-encoded 16-bit PCM capture frame
type CaptureDataEvent struct {
	Data string
}

func (e CaptureDataEvent) EventType() EventType {
	return EventTypeCaptureData
}
