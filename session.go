package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/live/core"
	"github.com/creastat/live/wire"
)

// StreamClient is the client surface the Session drives. *Client implements
// it; tests substitute fakes.
type StreamClient interface {
	Connect(ctx context.Context, config SetupConfig) error
	Disconnect() bool
	SendTextContent(text string) error
	SendRealtimeInput(chunks []wire.MediaChunk) error
	SendToolResponse(payload any) error
	Events() <-chan core.Event
}

var _ StreamClient = (*Client)(nil)

// PlaybackSink is the playback surface the Session interrupts on barge-in.
// *audio.Player implements it: Stop cancels every scheduled buffer and
// resets the schedule cursor.
type PlaybackSink interface {
	Stop()
}

// ErrSessionClosed is returned after a manual Close, which is terminal
var ErrSessionClosed = errors.New("live: session is closed")

// ErrNoFallback is returned when no streaming transport exists and no
// fallback responder was configured
var ErrNoFallback = errors.New("live: streaming unavailable and no fallback configured")

// ErrNotReady is returned for sends that cannot be queued while the setup
// handshake is outstanding
var ErrNotReady = errors.New("live: session is not ready")

// SessionConfig holds orchestrator configuration
type SessionConfig struct {
	Client StreamClient
	Setup  SetupConfig
	// Fallback handles sends when no transport exists or reconnection is
	// exhausted. Optional; without it such sends fail.
	Fallback Responder
	// Playback, when set, is stopped on an inbound interrupted frame so
	// scheduled audio is flushed the moment the model is barged in on.
	Playback PlaybackSink
	// MaxReconnectAttempts defaults to 3
	MaxReconnectAttempts int
	// BaseReconnectDelay defaults to 1s; the delay after attempt k is
	// min(base<<k, MaxReconnectDelay)
	BaseReconnectDelay time.Duration
	// MaxReconnectDelay defaults to 30s
	MaxReconnectDelay time.Duration
	// SubscriberBuffer sizes subscriber channels (default 64)
	SubscriberBuffer int
	Logger           telemetry.Logger
}

// Session wraps a StreamClient with exponential-backoff reconnection, a
// setup-completion gate that queues premature sends, and a fallback to
// non-streaming request/response mode on persistent failure. It makes the raw
// client safe to drive from callers that do not want to reason about
// handshake timing.
type Session struct {
	config     SessionConfig
	logger     telemetry.Logger
	fanout     *core.FanOut
	transcript *Transcript

	mu           sync.Mutex
	state        core.SessionState
	queue        []string
	attempts     int
	retryTimer   *time.Timer
	closed       bool
	fallbackOnly bool
	pendingTurn  string
	ctx          context.Context

	stop      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session around the given client
func NewSession(config SessionConfig) *Session {
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = 3
	}
	if config.BaseReconnectDelay <= 0 {
		config.BaseReconnectDelay = time.Second
	}
	if config.MaxReconnectDelay <= 0 {
		config.MaxReconnectDelay = 30 * time.Second
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = 64
	}
	if config.Logger == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}

	return &Session{
		config:     config,
		logger:     config.Logger.WithModule("session"),
		fanout:     core.NewFanOut(),
		transcript: NewTranscript(),
		state:      core.StateDisconnected,
		stop:       make(chan struct{}),
	}
}

// Start begins event processing and opens the first connection. The context
// governs this and all reconnect attempts.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.ctx = ctx
	s.mu.Unlock()

	go s.pump()
	s.connect()
	return nil
}

// State returns the current lifecycle state
func (s *Session) State() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FallbackActive reports whether the session has degraded to the
// non-streaming fallback path
func (s *Session) FallbackActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallbackOnly
}

// Transcript returns the session's message log
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// Subscribe registers a listener for session events, optionally filtered by
// event type. Events are delivered in emission order per subscriber.
func (s *Session) Subscribe(types ...core.EventType) <-chan core.Event {
	return s.fanout.Subscribe(s.config.SubscriberBuffer, types...)
}

// SendText sends one user text turn, applying the readiness policy:
// ready sends immediately; connecting or connected-but-unacknowledged queues;
// no transport at all falls back to the request/response path.
func (s *Session) SendText(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	switch {
	case s.state == core.StateReady && !s.fallbackOnly:
		s.mu.Unlock()
		if err := s.config.Client.SendTextContent(text); err != nil {
			return err
		}
		s.transcript.Append(core.RoleUser, text)
		return nil

	case s.state == core.StateConnecting || s.state == core.StateConnected:
		s.queue = append(s.queue, text)
		n := len(s.queue)
		s.mu.Unlock()
		s.transcript.Append(core.RoleUser, text)
		s.logger.Debug("queued message until setup completes", telemetry.Int("queue_len", n))
		return nil

	default:
		s.mu.Unlock()
		return s.respondViaFallback(ctx, text)
	}
}

// SendRealtimeInput forwards media chunks when the session is ready. Chunks
// arriving before the handshake completes are dropped: realtime media is
// continuous and stale frames are worthless by the time setup completes.
func (s *Session) SendRealtimeInput(chunks []wire.MediaChunk) error {
	s.mu.Lock()
	ready := s.state == core.StateReady && !s.closed
	s.mu.Unlock()

	if !ready {
		s.logger.Debug("dropping realtime input while not ready", telemetry.Int("chunks", len(chunks)))
		return nil
	}
	return s.config.Client.SendRealtimeInput(chunks)
}

// SendToolResponse forwards a tool response; it requires a ready session
func (s *Session) SendToolResponse(payload any) error {
	s.mu.Lock()
	ready := s.state == core.StateReady && !s.closed
	s.mu.Unlock()

	if !ready {
		return ErrNotReady
	}
	return s.config.Client.SendToolResponse(payload)
}

// Close tears the session down. It is terminal and idempotent: queued
// messages are dropped, any scheduled reconnect is cancelled, and the attempt
// counter is left as-is.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.pendingTurn = ""
		if s.retryTimer != nil {
			s.retryTimer.Stop()
			s.retryTimer = nil
		}
		s.state = core.StateDisconnected
		s.mu.Unlock()

		s.config.Client.Disconnect()
		close(s.stop)
		s.fanout.Close()
		s.logger.Info("session closed")
	})
}

// connect opens the transport. Connection failures feed the same
// retry/degrade path as a close.
func (s *Session) connect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = core.StateConnecting
	s.retryTimer = nil
	ctx := s.ctx
	setup := s.config.Setup
	s.mu.Unlock()

	s.logger.Info("connecting", telemetry.String("model", setup.Model))

	if err := s.config.Client.Connect(ctx, setup); err != nil {
		s.logger.Warn("connect failed", telemetry.Err(err))
		s.handleConnectionDown()
	}
}

// handleConnectionDown runs after a close or failed connect: schedule a
// bounded-backoff retry while attempts remain, otherwise degrade to fallback
// mode. Queued-but-unsent messages are dropped, not resent.
func (s *Session) handleConnectionDown() {
	s.mu.Lock()
	s.queue = nil
	s.pendingTurn = ""

	if s.closed {
		s.state = core.StateDisconnected
		s.mu.Unlock()
		return
	}

	if s.attempts < s.config.MaxReconnectAttempts {
		delay := reconnectDelay(s.config.BaseReconnectDelay, s.config.MaxReconnectDelay, s.attempts)
		s.attempts++
		attempt := s.attempts
		s.state = core.StateDisconnected
		s.retryTimer = time.AfterFunc(delay, s.connect)
		s.mu.Unlock()

		s.logger.Info("scheduling reconnect",
			telemetry.Int("attempt", attempt),
			telemetry.Int("max_attempts", s.config.MaxReconnectAttempts),
			telemetry.Int("delay_ms", int(delay.Milliseconds())))
		return
	}

	s.state = core.StateErrored
	s.fallbackOnly = true
	s.mu.Unlock()

	s.logger.Error("reconnect attempts exhausted, switching to fallback mode")
	s.fanout.Publish(core.ErrorEvent{
		Error:     errors.New("live: connection lost; switched to request/response mode"),
		Retryable: false,
	})
}

// respondViaFallback handles a send over the non-streaming path and surfaces
// the exchange through the same event stream the streaming path uses.
func (s *Session) respondViaFallback(ctx context.Context, text string) error {
	if s.config.Fallback == nil {
		return ErrNoFallback
	}

	s.transcript.Append(core.RoleUser, text)

	response, err := s.config.Fallback.Respond(ctx, text)
	if err != nil {
		s.logger.Error("fallback request failed", telemetry.Err(err))
		s.fanout.Publish(core.ErrorEvent{Error: err, Retryable: true})
		return err
	}

	s.transcript.Append(core.RoleAssistant, response)
	s.fanout.Publish(core.ContentEvent{Parts: []core.Part{{Text: response}}})
	s.fanout.Publish(core.TurnCompleteEvent{})
	return nil
}

// pump consumes client events for the life of the session, across reconnects
func (s *Session) pump() {
	events := s.config.Client.Events()
	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(ev)
		}
	}
}

// handleEvent advances the state machine and republishes the event to
// subscribers. Republication happens last so subscribers observe state
// changes already applied.
func (s *Session) handleEvent(ev core.Event) {
	switch e := ev.(type) {
	case core.OpenEvent:
		s.mu.Lock()
		s.state = core.StateConnected
		s.mu.Unlock()

	case core.SetupCompleteEvent:
		s.mu.Lock()
		s.state = core.StateReady
		s.attempts = 0
		queued := s.queue
		s.queue = nil
		s.mu.Unlock()

		// Drain in FIFO order: each queued item goes through the client
		// exactly as if it had been sent after readiness.
		for _, text := range queued {
			if err := s.config.Client.SendTextContent(text); err != nil {
				s.logger.Error("failed to send queued message", telemetry.Err(err))
				s.fanout.Publish(core.ErrorEvent{Error: err, Retryable: true})
			}
		}
		if len(queued) > 0 {
			s.logger.Info("drained queued messages", telemetry.Int("count", len(queued)))
		}

	case core.ContentEvent:
		s.mu.Lock()
		for _, p := range e.Parts {
			s.pendingTurn += p.Text
		}
		s.mu.Unlock()

	case core.InterruptedEvent:
		if s.config.Playback != nil {
			s.config.Playback.Stop()
		}

	case core.TurnCompleteEvent:
		s.mu.Lock()
		pending := s.pendingTurn
		s.pendingTurn = ""
		s.mu.Unlock()

		if pending != "" {
			s.transcript.Append(core.RoleAssistant, pending)
		}

	case core.CloseEvent:
		s.logger.Info("transport closed", telemetry.String("reason", e.Reason))
		s.handleConnectionDown()
	}

	s.fanout.Publish(ev)
}

// reconnectDelay computes the backoff before retry attempt k (0-indexed)
func reconnectDelay(base, max time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d <= 0 || d > max {
		return max
	}
	return d
}
