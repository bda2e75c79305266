package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind classifies an inbound frame. Exactly one kind applies per frame.
type Kind string

const (
	KindToolCall             Kind = "toolCall"
	KindToolCallCancellation Kind = "toolCallCancellation"
	KindSetupComplete        Kind = "setupComplete"
	KindServerContent        Kind = "serverContent"
	KindError                Kind = "error"
	KindUnknown              Kind = "unknown"
)

// ServerMessage is the decoded form of one inbound frame
type ServerMessage struct {
	SetupComplete        json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent        *ServerContent  `json:"serverContent,omitempty"`
	ToolCall             map[string]any  `json:"toolCall,omitempty"`
	ToolCallCancellation map[string]any  `json:"toolCallCancellation,omitempty"`
	Error                *ServerError    `json:"error,omitempty"`
}

// ServerContent is the model-output portion of an inbound frame. The three
// sub-cases are independent: a single frame may carry any combination of an
// interruption, a turn-complete marker, and model-turn parts.
type ServerContent struct {
	ModelTurn    *ModelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
	Interrupted  bool       `json:"interrupted,omitempty"`
}

// ModelTurn is the model's content for one turn
type ModelTurn struct {
	Parts []Part `json:"parts"`
}

// ServerError is a business error reported by the server in-band
type ServerError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// Decode parses one inbound frame. Frames arrive as opaque binary blobs that
// must be decoded to JSON before classification.
func Decode(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("wire: decode frame: %w", err)
	}
	return &msg, nil
}

// Classify determines the frame kind in fixed priority order:
// toolCall, toolCallCancellation, setupComplete, serverContent, error.
// First match wins.
func (m *ServerMessage) Classify() Kind {
	switch {
	case m.ToolCall != nil:
		return KindToolCall
	case m.ToolCallCancellation != nil:
		return KindToolCallCancellation
	case m.SetupComplete != nil:
		return KindSetupComplete
	case m.ServerContent != nil:
		return KindServerContent
	case m.Error != nil:
		return KindError
	default:
		return KindUnknown
	}
}

// SplitParts separates inline-audio parts from everything else, preserving
// arrival order within each group. A part is audio when its inline data MIME
// type starts with the PCM audio prefix.
func SplitParts(parts []Part) (audio, other []Part) {
	for _, p := range parts {
		if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, AudioPCMPrefix) {
			audio = append(audio, p)
		} else {
			other = append(other, p)
		}
	}
	return audio, other
}
