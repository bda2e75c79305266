package video

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/jpeg"
	"sync"
	"time"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/live/wire"
)

// RealtimeSender delivers media chunks onto the realtime input stream
type RealtimeSender interface {
	SendRealtimeInput(chunks []wire.MediaChunk) error
}

// SamplerConfig holds frame sampler configuration
type SamplerConfig struct {
	Sender   RealtimeSender
	Switcher *Switcher
	// Interval between samples (default 2s; realtime video to the model is
	// low-rate context, not a smooth feed)
	Interval time.Duration
	// Quality is the JPEG quality (default 80)
	Quality int
	Logger  telemetry.Logger
}

// Sampler periodically grabs the latest frame from the active video source,
// JPEG-encodes it and sends it as a realtime media chunk. Ticks with no
// active source or no fresh frame are skipped silently.
type Sampler struct {
	config SamplerConfig
	logger telemetry.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSampler creates a sampler
func NewSampler(config SamplerConfig) *Sampler {
	if config.Interval <= 0 {
		config.Interval = 2 * time.Second
	}
	if config.Quality <= 0 {
		config.Quality = 80
	}
	if config.Logger == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}
	return &Sampler{
		config: config,
		logger: config.Logger.WithModule("video-sampler"),
	}
}

// Start begins sampling until Stop or context cancellation. Idempotent.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(runCtx, done)
}

// Stop ends sampling and waits for the loop to exit. Idempotent.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Sampler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	source := s.config.Switcher.Current()
	if source == nil {
		return
	}

	select {
	case frame := <-source.Frames():
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: s.config.Quality}); err != nil {
			s.logger.Warn("failed to encode frame", telemetry.Err(err))
			return
		}
		chunk := wire.MediaChunk{
			MIMEType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		}
		if err := s.config.Sender.SendRealtimeInput([]wire.MediaChunk{chunk}); err != nil {
			s.logger.Warn("failed to send frame", telemetry.Err(err))
		}
	default:
		// no fresh frame since the last tick
	}
}
