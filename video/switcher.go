package video

import (
	"context"
	"sync"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/live/core"
)

// Switcher enforces mutual exclusion between video sources: at most one
// device streams at a time, and the previous source is fully stopped before
// the next one starts. Sources ending externally clear the active state.
type Switcher struct {
	webcam *Source
	screen *Source
	logger telemetry.Logger

	mu     sync.Mutex
	active core.VideoSourceState
}

// NewSwitcher creates a switcher over the given sources. Either source may
// be nil when that kind of capture is unavailable.
func NewSwitcher(webcam, screen *Source, logger telemetry.Logger) *Switcher {
	if logger == nil {
		logger = telemetry.New(telemetry.Config{Level: "info"})
	}
	sw := &Switcher{
		webcam: webcam,
		screen: screen,
		logger: logger.WithModule("video-switcher"),
		active: core.VideoSourceNone,
	}
	if webcam != nil {
		webcam.SetOnEnded(func() { sw.clearIfActive(core.VideoSourceWebcam) })
	}
	if screen != nil {
		screen.SetOnEnded(func() { sw.clearIfActive(core.VideoSourceScreen) })
	}
	return sw
}

// Active returns the currently streaming source kind
func (sw *Switcher) Active() core.VideoSourceState {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.active
}

// Current returns the active source, or nil when nothing streams
func (sw *Switcher) Current() *Source {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.source(sw.active)
}

// Use switches to the requested source kind, stopping whatever was active
// first. Requesting the already-active kind is a no-op; requesting
// VideoSourceNone stops everything.
func (sw *Switcher) Use(ctx context.Context, state core.VideoSourceState) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if state == sw.active {
		return nil
	}

	if current := sw.source(sw.active); current != nil {
		current.Stop()
	}
	sw.active = core.VideoSourceNone

	next := sw.source(state)
	if next == nil {
		return nil
	}
	if err := next.Start(ctx); err != nil {
		return err
	}
	sw.active = state
	sw.logger.Info("switched video source", telemetry.String("kind", string(state)))
	return nil
}

// Stop deactivates whatever source is streaming
func (sw *Switcher) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if current := sw.source(sw.active); current != nil {
		current.Stop()
	}
	sw.active = core.VideoSourceNone
}

func (sw *Switcher) source(state core.VideoSourceState) *Source {
	switch state {
	case core.VideoSourceWebcam:
		return sw.webcam
	case core.VideoSourceScreen:
		return sw.screen
	default:
		return nil
	}
}

func (sw *Switcher) clearIfActive(state core.VideoSourceState) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.active == state {
		sw.active = core.VideoSourceNone
	}
}
