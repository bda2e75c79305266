package wire

// AudioPCMPrefix identifies inline-data parts carrying raw PCM audio
const AudioPCMPrefix = "audio/pcm"

// SetupMessage is the first and only setup frame of a session
type SetupMessage struct {
	Setup Setup `json:"setup"`
}

// Setup carries the session configuration sent on transport open
type Setup struct {
	Model             string             `json:"model"`
	GenerationConfig  *GenerationConfig  `json:"generationConfig,omitempty"`
	SystemInstruction *SystemInstruction `json:"systemInstruction,omitempty"`
	Tools             []Tool             `json:"tools,omitempty"`
}

// GenerationConfig holds model generation settings
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	Temperature        *float64      `json:"temperature,omitempty"`
	TopP               *float64      `json:"topP,omitempty"`
	MaxOutputTokens    *int          `json:"maxOutputTokens,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig selects the synthesized voice
type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

// VoiceConfig wraps the prebuilt voice selection
type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

// PrebuiltVoiceConfig names one of the service's prebuilt voices
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// SystemInstruction carries the system prompt as content parts
type SystemInstruction struct {
	Parts []Part `json:"parts"`
}

// Part is one piece of turn content: text or inline media
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is base64-encoded media tagged with a MIME type
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Tool declares callable functions to the model
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionDeclaration describes one callable function
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ClientContentMessage carries user turns to the model
type ClientContentMessage struct {
	ClientContent ClientContent `json:"clientContent"`
}

// ClientContent is an ordered list of turns plus the turn-complete flag
type ClientContent struct {
	Turns        []Turn `json:"turns"`
	TurnComplete bool   `json:"turnComplete"`
}

// Turn is one conversational turn
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// RealtimeInputMessage carries streaming media chunks (audio and video frames
// interleave on this one channel, distinguished by MIME type)
type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

// RealtimeInput wraps the media chunk list
type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"mediaChunks"`
}

// MediaChunk is one base64-encoded media chunk tagged with its MIME type
type MediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ToolResponseMessage answers a server-initiated tool call
type ToolResponseMessage struct {
	ToolResponse any `json:"toolResponse"`
}

// NewTextContentMessage builds a single-shot user text turn.
// Turn-complete is always set: incremental streaming text input is not part
// of this protocol's client side.
func NewTextContentMessage(text string) ClientContentMessage {
	return NewContentMessage([]Part{{Text: text}}, true)
}

// NewContentMessage builds a user turn from arbitrary parts
func NewContentMessage(parts []Part, turnComplete bool) ClientContentMessage {
	return ClientContentMessage{
		ClientContent: ClientContent{
			Turns: []Turn{
				{Role: "user", Parts: parts},
			},
			TurnComplete: turnComplete,
		},
	}
}
