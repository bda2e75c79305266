package video

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/live/core"
	"github.com/creastat/live/wire"
)

func testLogger() telemetry.Logger {
	return telemetry.New(telemetry.Config{Level: "error"})
}

// opLog records device open/close ordering across fakes
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

type fakeVideoStream struct {
	name   string
	log    *opLog
	frames chan image.Image
	done   chan struct{}
	once   sync.Once
}

func (s *fakeVideoStream) Frames() <-chan image.Image { return s.frames }
func (s *fakeVideoStream) Done() <-chan struct{}      { return s.done }

func (s *fakeVideoStream) Close() {
	s.once.Do(func() {
		if s.log != nil {
			s.log.add("close:" + s.name)
		}
		close(s.done)
	})
}

func (s *fakeVideoStream) end() {
	s.once.Do(func() { close(s.done) })
}

type fakeVideoDevice struct {
	name string
	log  *opLog

	mu      sync.Mutex
	opens   int
	openErr error
	streams []*fakeVideoStream
}

func (d *fakeVideoDevice) Open(ctx context.Context) (DeviceStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.log != nil {
		d.log.add("open:" + d.name)
	}
	s := &fakeVideoStream{
		name:   d.name,
		log:    d.log,
		frames: make(chan image.Image, 16),
		done:   make(chan struct{}),
	}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeVideoDevice) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *fakeVideoDevice) stream() *fakeVideoStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

func testFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 16, 16))
}

func TestSourceStartStop(t *testing.T) {
	device := &fakeVideoDevice{name: "webcam"}
	ended := false
	source := NewWebcamSource(device, testLogger())
	source.SetOnEnded(func() { ended = true })

	require.NoError(t, source.Start(context.Background()))
	assert.True(t, source.Streaming())
	assert.Equal(t, core.VideoSourceWebcam, source.Type())
	assert.Equal(t, 1, device.openCount())

	source.Stop()
	assert.False(t, source.Streaming())
	assert.False(t, ended, "deliberate stop must not fire the ended callback")
}

func TestSourceStartIdempotent(t *testing.T) {
	device := &fakeVideoDevice{name: "webcam"}
	source := NewWebcamSource(device, testLogger())
	defer source.Stop()

	require.NoError(t, source.Start(context.Background()))
	require.NoError(t, source.Start(context.Background()))
	assert.Equal(t, 1, device.openCount())
}

func TestSourceOpenError(t *testing.T) {
	device := &fakeVideoDevice{name: "screen", openErr: fmt.Errorf("capture denied")}
	source := NewScreenSource(device, testLogger())

	err := source.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture denied")
	assert.False(t, source.Streaming())
}

func TestSourceLatestFrameWins(t *testing.T) {
	device := &fakeVideoDevice{name: "webcam"}
	source := NewWebcamSource(device, testLogger())
	defer source.Stop()

	require.NoError(t, source.Start(context.Background()))
	stream := device.stream()
	require.NotNil(t, stream)

	f1 := testFrame()
	f2 := testFrame()
	stream.frames <- f1
	stream.frames <- f2

	require.Eventually(t, func() bool {
		select {
		case f := <-source.Frames():
			return f == image.Image(f2)
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond, "the newest frame must win")
}

func TestSourceExternalEndFiresCallback(t *testing.T) {
	device := &fakeVideoDevice{name: "screen"}
	source := NewScreenSource(device, testLogger())

	endedCh := make(chan struct{})
	source.SetOnEnded(func() { close(endedCh) })

	require.NoError(t, source.Start(context.Background()))
	device.stream().end()

	select {
	case <-endedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("ended callback never fired")
	}
	assert.False(t, source.Streaming())
}

func TestSwitcherStopsPreviousBeforeStartingNext(t *testing.T) {
	log := &opLog{}
	webcamDev := &fakeVideoDevice{name: "webcam", log: log}
	screenDev := &fakeVideoDevice{name: "screen", log: log}

	sw := NewSwitcher(
		NewWebcamSource(webcamDev, testLogger()),
		NewScreenSource(screenDev, testLogger()),
		testLogger(),
	)
	defer sw.Stop()

	require.NoError(t, sw.Use(context.Background(), core.VideoSourceWebcam))
	assert.Equal(t, core.VideoSourceWebcam, sw.Active())

	require.NoError(t, sw.Use(context.Background(), core.VideoSourceScreen))
	assert.Equal(t, core.VideoSourceScreen, sw.Active())

	assert.Equal(t, []string{"open:webcam", "close:webcam", "open:screen"}, log.snapshot())
}

func TestSwitcherSameStateIsNoop(t *testing.T) {
	webcamDev := &fakeVideoDevice{name: "webcam"}
	sw := NewSwitcher(NewWebcamSource(webcamDev, testLogger()), nil, testLogger())
	defer sw.Stop()

	require.NoError(t, sw.Use(context.Background(), core.VideoSourceWebcam))
	require.NoError(t, sw.Use(context.Background(), core.VideoSourceWebcam))
	assert.Equal(t, 1, webcamDev.openCount())
}

func TestSwitcherNoneStopsEverything(t *testing.T) {
	webcamDev := &fakeVideoDevice{name: "webcam"}
	sw := NewSwitcher(NewWebcamSource(webcamDev, testLogger()), nil, testLogger())

	require.NoError(t, sw.Use(context.Background(), core.VideoSourceWebcam))
	require.NoError(t, sw.Use(context.Background(), core.VideoSourceNone))

	assert.Equal(t, core.VideoSourceNone, sw.Active())
	assert.True(t, webcamDev.stream().isClosed())
}

func (s *fakeVideoStream) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func TestSwitcherExternalEndClearsActive(t *testing.T) {
	screenDev := &fakeVideoDevice{name: "screen"}
	sw := NewSwitcher(nil, NewScreenSource(screenDev, testLogger()), testLogger())

	require.NoError(t, sw.Use(context.Background(), core.VideoSourceScreen))
	screenDev.stream().end()

	require.Eventually(t, func() bool {
		return sw.Active() == core.VideoSourceNone
	}, 2*time.Second, time.Millisecond)
}

func TestSwitcherUnavailableKind(t *testing.T) {
	sw := NewSwitcher(nil, nil, testLogger())
	require.NoError(t, sw.Use(context.Background(), core.VideoSourceWebcam))
	assert.Equal(t, core.VideoSourceNone, sw.Active())
}

type fakeSender struct {
	mu     sync.Mutex
	chunks [][]wire.MediaChunk
}

func (f *fakeSender) SendRealtimeInput(chunks []wire.MediaChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

func TestSamplerSendsJPEGFrames(t *testing.T) {
	webcamDev := &fakeVideoDevice{name: "webcam"}
	sw := NewSwitcher(NewWebcamSource(webcamDev, testLogger()), nil, testLogger())
	defer sw.Stop()

	require.NoError(t, sw.Use(context.Background(), core.VideoSourceWebcam))
	webcamDev.stream().frames <- testFrame()

	sender := &fakeSender{}
	sampler := NewSampler(SamplerConfig{
		Sender:   sender,
		Switcher: sw,
		Interval: 5 * time.Millisecond,
		Logger:   testLogger(),
	})
	sampler.Start(context.Background())
	defer sampler.Stop()

	require.Eventually(t, func() bool {
		return sender.count() >= 1
	}, 2*time.Second, time.Millisecond)

	sender.mu.Lock()
	chunk := sender.chunks[0][0]
	sender.mu.Unlock()

	assert.Equal(t, "image/jpeg", chunk.MIMEType)
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	require.NoError(t, err)
	require.True(t, len(raw) > 2)
	assert.Equal(t, byte(0xFF), raw[0])
	assert.Equal(t, byte(0xD8), raw[1])
}

func TestSamplerIdleWithoutActiveSource(t *testing.T) {
	sw := NewSwitcher(nil, nil, testLogger())
	sender := &fakeSender{}
	sampler := NewSampler(SamplerConfig{
		Sender:   sender,
		Switcher: sw,
		Interval: time.Millisecond,
		Logger:   testLogger(),
	})
	sampler.Start(context.Background())
	defer sampler.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sender.count())
}

func TestSamplerStopIdempotent(t *testing.T) {
	sw := NewSwitcher(nil, nil, testLogger())
	sampler := NewSampler(SamplerConfig{Sender: &fakeSender{}, Switcher: sw, Logger: testLogger()})

	sampler.Stop() // never started
	sampler.Start(context.Background())
	sampler.Stop()
	sampler.Stop()
}
