// Package live implements a real-time bidirectional streaming client for
// generative voice/video conversation over a duplex WebSocket.
//
// The Client owns the connection and the framing protocol; the Session wraps
// it with reconnection, a setup-completion gate, and a non-streaming
// fallback. Audio capture and playback live in the audio subpackage, video
// frame sources in the video subpackage.
package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/live/core"
	"github.com/creastat/live/wire"
	"github.com/gorilla/websocket"
)

// DefaultEndpoint is the production duplex endpoint
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"

// closeReasonPrelude marks the start of the useful text in server close
// reasons; everything before and including it is stripped.
const closeReasonPrelude = "ERROR]"

// ErrNotConnected is returned by send methods when no transport is open
var ErrNotConnected = errors.New("live: websocket is not connected")

// ErrAlreadyConnected is returned by Connect when a transport already exists
var ErrAlreadyConnected = errors.New("live: client already has a live connection")

// ClientConfig holds client configuration
type ClientConfig struct {
	// Endpoint defaults to DefaultEndpoint
	Endpoint string
	// APIKey is appended to the endpoint as the key query parameter
	APIKey string
	// Dialer defaults to websocket.DefaultDialer
	Dialer *websocket.Dialer
	// EventBuffer sizes the Events channel (default 64)
	EventBuffer int
	Logger      telemetry.Logger
}

// SetupConfig is the session configuration serialized into the setup frame
type SetupConfig struct {
	Model             string
	GenerationConfig  *wire.GenerationConfig
	SystemInstruction string
	Tools             []wire.Tool
}

// Client is the single point of contact with the remote duplex endpoint.
// It performs the setup handshake, classifies and dispatches inbound frames,
// and serializes outbound frames. It does not gate sends on the handshake;
// that is the Session's job.
type Client struct {
	config ClientConfig
	logger telemetry.Logger
	events chan core.Event

	mu      sync.Mutex
	conn    *websocket.Conn
	dialing bool
	setup   *SetupConfig

	// writeMu serializes writers; gorilla permits one concurrent writer
	writeMu sync.Mutex
}

// NewClient creates a new streaming client
func NewClient(config ClientConfig) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Dialer == nil {
		config.Dialer = websocket.DefaultDialer
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	if config.Logger == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}

	return &Client{
		config: config,
		logger: config.Logger.WithModule("live_client"),
		events: make(chan core.Event, config.EventBuffer),
	}
}

// Events returns the channel on which lifecycle and content events are
// delivered, in emission order. Consumers must drain it; a stalled consumer
// eventually stalls the read loop.
func (c *Client) Events() <-chan core.Event {
	return c.events
}

// Config returns a copy of the setup configuration of the current or most
// recent connection, or nil if Connect was never called.
func (c *Client) Config() *SetupConfig {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.setup == nil {
		return nil
	}
	cfg := *c.setup
	return &cfg
}

// Connect opens the transport and, immediately on open, sends exactly one
// setup frame derived from config before any other traffic. It returns once
// the transport is open; it does not wait for the setup acknowledgment.
func (c *Client) Connect(ctx context.Context, config SetupConfig) error {
	c.mu.Lock()
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	// Reserve the handle across the dial; only one transport may exist.
	c.dialing = true
	c.setup = &config
	c.mu.Unlock()

	url := c.config.Endpoint
	if c.config.APIKey != "" {
		url += "?key=" + c.config.APIKey
	}

	conn, _, err := c.config.Dialer.DialContext(ctx, url, nil)

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		c.log("server.error", "could not connect to live endpoint")
		return fmt.Errorf("live: connect: %w", err)
	}
	c.conn = conn
	c.mu.Unlock()

	c.log("client.open", "connected to socket")
	c.emit(core.OpenEvent{})

	setup := wire.SetupMessage{Setup: setupFrame(config)}
	if err := c.sendFrame(setup); err != nil {
		c.Disconnect()
		return fmt.Errorf("live: send setup: %w", err)
	}
	c.log("client.send", "setup")

	go c.readLoop(conn)

	return nil
}

// Disconnect closes the transport. It is idempotent: if no live transport
// exists it returns false and is a no-op. The close event is emitted by the
// read loop when the transport actually goes down.
func (c *Client) Disconnect() bool {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return false
	}

	conn.Close()
	c.log("client.close", "disconnected")
	return true
}

// SendRealtimeInput sends streaming media chunks. Audio and video frames
// share this channel and are distinguished by MIME type.
func (c *Client) SendRealtimeInput(chunks []wire.MediaChunk) error {
	if err := c.sendFrame(wire.RealtimeInputMessage{
		RealtimeInput: wire.RealtimeInput{MediaChunks: chunks},
	}); err != nil {
		return err
	}
	c.log("client.realtimeInput", describeChunks(chunks))
	return nil
}

// SendTextContent sends a single-shot user text turn with turn-complete set
func (c *Client) SendTextContent(text string) error {
	if err := c.sendFrame(wire.NewTextContentMessage(text)); err != nil {
		return err
	}
	c.log("client.textContent", truncate(text, 50))
	return nil
}

// Send sends arbitrary content parts as one user turn
func (c *Client) Send(parts []wire.Part, turnComplete bool) error {
	if err := c.sendFrame(wire.NewContentMessage(parts, turnComplete)); err != nil {
		return err
	}
	c.log("client.send", "clientContent")
	return nil
}

// SendToolResponse answers a server-initiated tool call
func (c *Client) SendToolResponse(payload any) error {
	if err := c.sendFrame(wire.ToolResponseMessage{ToolResponse: payload}); err != nil {
		return err
	}
	c.log("client.toolResponse", "toolResponse")
	return nil
}

// sendFrame serializes one framed JSON message and writes it to the open
// transport. Calling before the transport is open is an error.
func (c *Client) sendFrame(frame any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("live: marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("live: write frame: %w", err)
	}
	return nil
}

// readLoop receives frames until the transport goes down, then emits a close
// event with the best-effort parsed reason.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)

			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			c.log("server.close", fmt.Sprintf("disconnected %s", reason))
			c.emit(core.CloseEvent{Code: code, Reason: reason})
			return
		}

		c.dispatch(data)
	}
}

// dispatch decodes and classifies one inbound frame and emits the
// corresponding events. Undecodable and unclassifiable frames are logged and
// dropped; they never tear down the connection.
func (c *Client) dispatch(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		c.logger.Warn("dropping malformed frame", telemetry.Err(err), telemetry.Int("size", len(data)))
		return
	}

	switch msg.Classify() {
	case wire.KindToolCall:
		c.log("server.toolCall", "toolCall")
		c.emit(core.ToolCallEvent{Payload: msg.ToolCall})

	case wire.KindToolCallCancellation:
		c.log("server.toolCallCancellation", "toolCallCancellation")
		c.emit(core.ToolCallCancellationEvent{Payload: msg.ToolCallCancellation})

	case wire.KindSetupComplete:
		c.log("server.send", "setupComplete")
		c.emit(core.SetupCompleteEvent{})

	case wire.KindServerContent:
		c.dispatchServerContent(msg.ServerContent)

	case wire.KindError:
		c.log("server.error", msg.Error.Message)
		c.emit(core.ErrorEvent{
			Error:     fmt.Errorf("live: server error: %s", msg.Error.Message),
			Retryable: true,
		})

	default:
		c.logger.Warn("received unmatched frame", telemetry.Int("size", len(data)))
	}
}

// dispatchServerContent emits events for each applicable sub-case. The three
// sub-cases are not mutually exclusive and are each checked.
func (c *Client) dispatchServerContent(sc *wire.ServerContent) {
	if sc.Interrupted {
		c.log("server.content", "interrupted")
		c.emit(core.InterruptedEvent{})
	}

	if sc.TurnComplete {
		c.log("server.send", "turnComplete")
		c.emit(core.TurnCompleteEvent{})
	}

	if sc.ModelTurn == nil {
		return
	}

	audioParts, otherParts := wire.SplitParts(sc.ModelTurn.Parts)

	// Audio and text/tool content are logically independent streams
	// multiplexed onto one connection; splitting here lets the playback
	// pipeline and the transcript each react only to their own events.
	for _, p := range audioParts {
		raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			c.logger.Warn("dropping undecodable audio part", telemetry.Err(err))
			continue
		}
		c.log("server.audio", fmt.Sprintf("buffer (%d)", len(raw)))
		c.emit(core.AudioEvent{Data: raw})
	}

	if len(otherParts) == 0 {
		return
	}

	c.log("server.content", "modelTurn")
	c.emit(core.ContentEvent{Parts: wire.ToCoreParts(otherParts)})
}

// emit delivers a semantic event in order. Delivery blocks when the buffer is
// full so ordering guarantees hold.
func (c *Client) emit(event core.Event) {
	c.events <- event
}

// log records a client log entry and mirrors it to listeners as a LogEvent.
// Log events are dropped when the buffer is full rather than blocking.
func (c *Client) log(entryType, message string) {
	c.logger.Debug(message, telemetry.String("type", entryType))

	select {
	case c.events <- core.LogEvent{Entry: core.LogEntry{
		Date:    time.Now(),
		Type:    entryType,
		Message: message,
	}}:
	default:
	}
}

// setupFrame converts the caller-facing config into the wire setup payload
func setupFrame(config SetupConfig) wire.Setup {
	setup := wire.Setup{
		Model:            config.Model,
		GenerationConfig: config.GenerationConfig,
		Tools:            config.Tools,
	}
	if config.SystemInstruction != "" {
		setup.SystemInstruction = &wire.SystemInstruction{
			Parts: []wire.Part{{Text: config.SystemInstruction}},
		}
	}
	return setup
}

// closeDetails extracts the close code and a cleaned-up reason from a read
// error. Known error-prelude markers are stripped from server close text.
func closeDetails(err error) (int, string) {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return 0, ""
	}

	reason := closeErr.Text
	if strings.Contains(strings.ToLower(reason), "error") {
		if idx := strings.Index(reason, closeReasonPrelude); idx > 0 {
			trimmed := reason[idx+len(closeReasonPrelude):]
			reason = strings.TrimLeft(trimmed, " ")
		}
	}
	return closeErr.Code, reason
}

// describeChunks summarizes a media chunk batch for the log stream
func describeChunks(chunks []wire.MediaChunk) string {
	hasAudio := false
	hasVideo := false
	for _, ch := range chunks {
		if strings.Contains(ch.MIMEType, "audio") {
			hasAudio = true
		}
		if strings.Contains(ch.MIMEType, "image") {
			hasVideo = true
		}
		if hasAudio && hasVideo {
			break
		}
	}

	switch {
	case hasAudio && hasVideo:
		return "audio + video"
	case hasAudio:
		return "audio"
	case hasVideo:
		return "video"
	default:
		return "unknown"
	}
}

// truncate shortens a string for log output
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
