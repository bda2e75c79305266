// Package video provides frame sources for realtime sessions: webcam and
// screen capture behind a shared device abstraction, mutually exclusive
// switching between them, and periodic JPEG sampling onto the realtime
// input stream.
package video

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/live/core"
)

// DeviceStream is an open video stream. Close releases the device; Done is
// closed when the stream ends for any reason, including Close and the user
// ending it externally (for example stopping a screen share from the OS).
type DeviceStream interface {
	Frames() <-chan image.Image
	Done() <-chan struct{}
	Close()
}

// Device opens video streams. Implementations wrap a platform capture
// backend; tests use in-memory fakes.
type Device interface {
	Open(ctx context.Context) (DeviceStream, error)
}

// Source manages one video device with a persistent latest-frame channel
// that survives restarts. When the underlying stream ends externally the
// source marks itself stopped and fires its ended callback, so owners track
// reality rather than what they last requested.
type Source struct {
	kind   core.VideoSourceState
	device Device
	logger telemetry.Logger
	frames chan image.Image

	mu        sync.Mutex
	streaming bool
	stream    DeviceStream
	onEnded   func()
}

// NewWebcamSource creates a source for the given webcam device
func NewWebcamSource(device Device, logger telemetry.Logger) *Source {
	return newSource(core.VideoSourceWebcam, device, logger)
}

// NewScreenSource creates a source for the given screen-capture device
func NewScreenSource(device Device, logger telemetry.Logger) *Source {
	return newSource(core.VideoSourceScreen, device, logger)
}

func newSource(kind core.VideoSourceState, device Device, logger telemetry.Logger) *Source {
	if logger == nil {
		logger = telemetry.New(telemetry.Config{Level: "info"})
	}
	return &Source{
		kind:   kind,
		device: device,
		logger: logger.WithModule("video-source"),
		frames: make(chan image.Image, 1),
	}
}

// Type identifies what kind of source this is
func (s *Source) Type() core.VideoSourceState {
	return s.kind
}

// Streaming reports whether the source currently has an open stream
func (s *Source) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Frames returns the latest-frame channel. It holds at most one frame;
// stale frames are replaced, never queued.
func (s *Source) Frames() <-chan image.Image {
	return s.frames
}

// SetOnEnded registers a callback fired when the stream ends externally
// rather than through Stop
func (s *Source) SetOnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// Start opens the device. Starting an already-streaming source is a no-op.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	stream, err := s.device.Open(ctx)
	if err != nil {
		return fmt.Errorf("video: open %s: %w", s.kind, err)
	}

	s.mu.Lock()
	if s.streaming {
		// lost the race to another Start
		s.mu.Unlock()
		stream.Close()
		return nil
	}
	s.stream = stream
	s.streaming = true
	s.mu.Unlock()

	go s.forward(stream)
	s.logger.Info("video source started", telemetry.String("kind", string(s.kind)))
	return nil
}

// Stop closes the stream. Idempotent.
func (s *Source) Stop() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.streaming = false
	s.mu.Unlock()

	if stream != nil {
		stream.Close()
		s.logger.Info("video source stopped", telemetry.String("kind", string(s.kind)))
	}
}

func (s *Source) forward(stream DeviceStream) {
	for {
		select {
		case frame, ok := <-stream.Frames():
			if !ok {
				s.ended(stream)
				return
			}
			// latest wins
			select {
			case <-s.frames:
			default:
			}
			select {
			case s.frames <- frame:
			default:
			}
		case <-stream.Done():
			s.ended(stream)
			return
		}
	}
}

// ended handles the stream going away underneath us. If Stop already
// cleared the stream this was a deliberate close and no callback fires.
func (s *Source) ended(stream DeviceStream) {
	s.mu.Lock()
	var cb func()
	if s.stream == stream {
		s.stream = nil
		s.streaming = false
		cb = s.onEnded
	}
	s.mu.Unlock()

	if cb != nil {
		s.logger.Info("video stream ended externally", telemetry.String("kind", string(s.kind)))
		stream.Close()
		cb()
	}
}
