package audio

import (
	"io"
	"sync"

	"github.com/creastat/infra/telemetry"
)

// PlayHandle refers to one scheduled buffer
type PlayHandle interface {
	Cancel()
}

// Output renders sample buffers at scheduled times on the player's clock.
// Play must not block; it hands the buffer to the backend and returns.
type Output interface {
	Play(samples []float32, at float64) PlayHandle
}

// PlayerConfig holds playback configuration
type PlayerConfig struct {
	Output Output
	// SampleRate defaults to 24000, the rate the model streams at
	SampleRate int
	Clock      Clock
	Logger     telemetry.Logger
}

// Player schedules streamed PCM chunks back-to-back for gapless playback.
// Every chunk starts at the running cursor, never at wall-clock now, and the
// cursor advances by the chunk's duration, so consecutive buffers always abut
// on the scheduling timeline regardless of arrival jitter. If arrival falls
// behind the playback rate the sink renders a gap; that is an accepted
// degradation, not an error. Stop cancels everything in flight and resets
// the cursor to now, which is the barge-in path: model audio must cut off
// immediately when the user interrupts.
type Player struct {
	config PlayerConfig
	logger telemetry.Logger

	mu       sync.Mutex
	cursor   float64
	active   []scheduledBuffer
	complete bool
}

type scheduledBuffer struct {
	handle PlayHandle
	end    float64
}

// NewPlayer creates a player
func NewPlayer(config PlayerConfig) *Player {
	if config.SampleRate <= 0 {
		config.SampleRate = 24000
	}
	if config.Clock == nil {
		config.Clock = NewSystemClock()
	}
	if config.Logger == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}

	return &Player{
		config: config,
		logger: config.Logger.WithModule("audio-playback"),
		cursor: config.Clock.Now(),
	}
}

// AddPCM16 schedules one chunk of little-endian 16-bit PCM
func (p *Player) AddPCM16(data []byte) {
	samples := Float32FromPCM16(data)
	if len(samples) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.complete = false
	now := p.config.Clock.Now()
	start := p.cursor
	duration := float64(len(samples)) / float64(p.config.SampleRate)
	p.cursor = start + duration

	active := p.active[:0]
	for _, s := range p.active {
		if s.end > now {
			active = append(active, s)
		}
	}
	handle := p.config.Output.Play(samples, start)
	p.active = append(active, scheduledBuffer{handle: handle, end: p.cursor})
}

// Stop cancels all scheduled audio and resets the cursor to now
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.active {
		s.handle.Cancel()
	}
	p.active = nil
	p.cursor = p.config.Clock.Now()
	p.logger.Debug("playback stopped")
}

// MarkComplete flags the end of the current turn. Already-scheduled audio
// keeps playing; the flag only tells callers no further chunks are coming.
func (p *Player) MarkComplete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.complete = true
}

// Complete reports whether the current turn has been marked finished
func (p *Player) Complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.complete
}

// Playing reports whether scheduled audio extends past the current time
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active) > 0 && p.cursor > p.config.Clock.Now()
}

// Cursor returns the time at which the next chunk would be scheduled
func (p *Player) Cursor() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// WriterOutput is an Output that writes 16-bit PCM to an io.Writer as soon
// as buffers are scheduled, ignoring timing. It suits sinks that do their
// own pacing, like a sound-server pipe or a file.
type WriterOutput struct {
	W io.Writer
}

// Play writes the buffer immediately
func (o *WriterOutput) Play(samples []float32, at float64) PlayHandle {
	o.W.Write(PCM16FromFloat32(samples))
	return noopHandle{}
}

type noopHandle struct{}

func (noopHandle) Cancel() {}
