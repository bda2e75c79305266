package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/live/core"
)

// captureEngineID keys the shared process-wide input engine
const captureEngineID = "audio-input"

// InputConfig describes the stream requested from an input device
type InputConfig struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// InputStream is an open device stream delivering normalized mono samples
type InputStream interface {
	// Read blocks for the next batch of samples. It returns an error when
	// the stream ends or the context is cancelled.
	Read(ctx context.Context) ([]float32, error)
	Close() error
}

// InputDevice opens capture streams. Implementations wrap whatever platform
// audio backend is available; tests use in-memory fakes.
type InputDevice interface {
	Open(ctx context.Context, config InputConfig) (InputStream, error)
}

// CaptureConfig holds capture pipeline configuration
type CaptureConfig struct {
	Device InputDevice
	// SampleRate defaults to 16000
	SampleRate int
	// BufferSize is the samples per emitted data chunk (default 4096)
	BufferSize int
	// EventBuffer sizes the event channel (default 64)
	EventBuffer int
	Logger      telemetry.Logger
}

// Capture records from an input device and emits base64 16-bit PCM chunks
// alongside a smoothed volume level. Start is idempotent and safe to call
// concurrently: exactly one device stream is opened no matter how many
// callers race. Stop during an in-flight Start waits for the start to settle
// and then tears down.
type Capture struct {
	config CaptureConfig
	logger telemetry.Logger
	events chan core.Event
	sf     singleflight.Group

	mu           sync.Mutex
	settled      *sync.Cond
	startPending int
	running      bool
	stream       InputStream
	engine       *Engine
	handles      []*Handle
	cancel       context.CancelFunc
	pumpDone     chan struct{}
}

// NewCapture creates a capture pipeline
func NewCapture(config CaptureConfig) *Capture {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 4096
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	if config.Logger == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}

	c := &Capture{
		config: config,
		logger: config.Logger.WithModule("audio-capture"),
		events: make(chan core.Event, config.EventBuffer),
	}
	c.settled = sync.NewCond(&c.mu)
	return c
}

// Events returns the capture event stream: data chunks, volume levels and
// errors. Events are dropped, not blocked on, when the consumer lags.
func (c *Capture) Events() <-chan core.Event {
	return c.events
}

// Recording reports whether capture is currently active
func (c *Capture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start opens the device and begins emitting data chunks. Concurrent and
// repeated calls collapse into one device open.
func (c *Capture) Start(ctx context.Context) error {
	// The pending count is raised before any await point so a racing Stop
	// always observes this start.
	c.mu.Lock()
	c.startPending++
	c.mu.Unlock()

	_, err, _ := c.sf.Do("start", func() (any, error) {
		return nil, c.start(ctx)
	})

	c.mu.Lock()
	c.startPending--
	if c.startPending == 0 {
		c.settled.Broadcast()
	}
	c.mu.Unlock()
	return err
}

func (c *Capture) start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	stream, err := c.config.Device.Open(ctx, InputConfig{
		SampleRate:       c.config.SampleRate,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	})
	if err != nil {
		err = fmt.Errorf("audio: open input device: %w", err)
		c.emit(core.ErrorEvent{Error: err, Retryable: true})
		return err
	}

	engine := AcquireEngine(captureEngineID, EngineConfig{
		SampleRate: c.config.SampleRate,
		Logger:     c.config.Logger,
	})

	rec := newRecorder(c.config.BufferSize, func(pcm []byte) {
		c.emit(core.CaptureDataEvent{Data: base64.StdEncoding.EncodeToString(pcm)})
	})
	recHandle, err := engine.AttachProcessor(rec)
	if err != nil {
		stream.Close()
		return err
	}
	meter := NewVolumeMeter(c.config.SampleRate, func(level float64) {
		c.emit(core.VolumeEvent{Level: level})
	})
	meterHandle, err := engine.AttachProcessor(meter)
	if err != nil {
		recHandle.Detach()
		stream.Close()
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go c.pump(pumpCtx, stream, engine, done)

	c.mu.Lock()
	c.running = true
	c.stream = stream
	c.engine = engine
	c.handles = []*Handle{recHandle, meterHandle}
	c.cancel = cancel
	c.pumpDone = done
	c.mu.Unlock()

	c.logger.Info("capture started",
		telemetry.Int("sample_rate", c.config.SampleRate),
		telemetry.Int("buffer_size", c.config.BufferSize))
	return nil
}

// Stop ends capture and releases the device. It is idempotent, and a Stop
// racing an in-flight Start waits for the start to settle first so the
// device is never left open.
func (c *Capture) Stop() {
	c.mu.Lock()
	for c.startPending > 0 {
		c.settled.Wait()
	}
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	stream := c.stream
	engine := c.engine
	handles := c.handles
	done := c.pumpDone
	c.stream = nil
	c.engine = nil
	c.handles = nil
	c.cancel = nil
	c.pumpDone = nil
	c.mu.Unlock()

	cancel()
	stream.Close()
	<-done
	for _, h := range handles {
		h.Detach()
	}
	// The engine stays cached for the next Start; suspend rather than close.
	engine.Suspend()

	c.logger.Info("capture stopped")
}

func (c *Capture) pump(ctx context.Context, stream InputStream, engine *Engine, done chan struct{}) {
	defer close(done)
	for {
		samples, err := stream.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("input stream ended", telemetry.Err(err))
				c.emit(core.ErrorEvent{Error: err, Retryable: true})
			}
			return
		}
		engine.Push(samples)
	}
}

// emit never blocks; capture is a realtime path
func (c *Capture) emit(event core.Event) {
	select {
	case c.events <- event:
	default:
	}
}

// recorder buffers samples and emits fixed-size PCM chunks
type recorder struct {
	size int
	buf  []float32
	emit func(pcm []byte)
}

func newRecorder(size int, emit func(pcm []byte)) *recorder {
	return &recorder{size: size, emit: emit}
}

func (r *recorder) Process(samples []float32) {
	r.buf = append(r.buf, samples...)
	for len(r.buf) >= r.size {
		r.emit(PCM16FromFloat32(r.buf[:r.size]))
		r.buf = append(r.buf[:0], r.buf[r.size:]...)
	}
}
