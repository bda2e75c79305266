package audio

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClock is a manually advanced clock
type stubClock struct {
	mu sync.Mutex
	t  float64
}

func (c *stubClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stubClock) set(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type playedBuffer struct {
	samples   []float32
	at        float64
	cancelled bool
}

type recordingOutput struct {
	mu     sync.Mutex
	played []*playedBuffer
}

func (o *recordingOutput) Play(samples []float32, at float64) PlayHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	buf := &playedBuffer{samples: samples, at: at}
	o.played = append(o.played, buf)
	return outputHandle{buf: buf, out: o}
}

type outputHandle struct {
	buf *playedBuffer
	out *recordingOutput
}

func (h outputHandle) Cancel() {
	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	h.buf.cancelled = true
}

func pcmOfLength(n int) []byte {
	return PCM16FromFloat32(constantBlock(n, 0.25))
}

func TestPlayerSchedulesBackToBack(t *testing.T) {
	clock := &stubClock{t: 10}
	out := &recordingOutput{}
	p := NewPlayer(PlayerConfig{Output: out, SampleRate: 4, Clock: clock, Logger: testLogger()})

	// 8 samples at 4Hz is 2 seconds of audio
	p.AddPCM16(pcmOfLength(8))
	p.AddPCM16(pcmOfLength(4))

	out.mu.Lock()
	require.Len(t, out.played, 2)
	assert.Equal(t, 10.0, out.played[0].at)
	assert.Equal(t, 12.0, out.played[1].at)
	out.mu.Unlock()

	assert.Equal(t, 13.0, p.Cursor())
	assert.True(t, p.Playing())
}

func TestPlayerSlowArrivalStaysBackToBack(t *testing.T) {
	clock := &stubClock{t: 0}
	out := &recordingOutput{}
	p := NewPlayer(PlayerConfig{Output: out, SampleRate: 40, Clock: clock, Logger: testLogger()})

	// 100ms chunks arriving every 200ms: scheduling must remain gapless on
	// the cursor timeline even though arrival lags the playback rate
	for i := 0; i < 3; i++ {
		clock.set(float64(i) * 0.2)
		p.AddPCM16(pcmOfLength(4))
	}

	out.mu.Lock()
	require.Len(t, out.played, 3)
	assert.InDelta(t, 0.0, out.played[0].at, 1e-9)
	assert.InDelta(t, 0.1, out.played[1].at, 1e-9)
	assert.InDelta(t, 0.2, out.played[2].at, 1e-9)
	out.mu.Unlock()
	assert.InDelta(t, 0.3, p.Cursor(), 1e-9)
}

func TestPlayerStopCancelsAndResetsCursor(t *testing.T) {
	clock := &stubClock{t: 10}
	out := &recordingOutput{}
	p := NewPlayer(PlayerConfig{Output: out, SampleRate: 4, Clock: clock, Logger: testLogger()})

	p.AddPCM16(pcmOfLength(8))
	p.AddPCM16(pcmOfLength(8))
	require.True(t, p.Playing())

	clock.set(11)
	p.Stop()

	out.mu.Lock()
	for _, buf := range out.played {
		assert.True(t, buf.cancelled, "every scheduled buffer must be cancelled")
	}
	out.mu.Unlock()

	assert.False(t, p.Playing())
	assert.Equal(t, 11.0, p.Cursor())

	// audio after an interruption starts fresh from now
	p.AddPCM16(pcmOfLength(4))
	out.mu.Lock()
	assert.Equal(t, 11.0, out.played[2].at)
	out.mu.Unlock()
}

func TestPlayerPlayingFalseAfterScheduledEnd(t *testing.T) {
	clock := &stubClock{t: 0}
	out := &recordingOutput{}
	p := NewPlayer(PlayerConfig{Output: out, SampleRate: 4, Clock: clock, Logger: testLogger()})

	p.AddPCM16(pcmOfLength(4)) // ends at t=1
	assert.True(t, p.Playing())

	clock.set(1.5)
	assert.False(t, p.Playing())
}

func TestPlayerCompleteDoesNotCutScheduledAudio(t *testing.T) {
	clock := &stubClock{t: 0}
	out := &recordingOutput{}
	p := NewPlayer(PlayerConfig{Output: out, SampleRate: 4, Clock: clock, Logger: testLogger()})

	p.AddPCM16(pcmOfLength(8))
	assert.False(t, p.Complete())

	p.MarkComplete()
	assert.True(t, p.Complete())
	assert.True(t, p.Playing())

	out.mu.Lock()
	assert.False(t, out.played[0].cancelled)
	out.mu.Unlock()

	// the next turn's audio clears the flag
	p.AddPCM16(pcmOfLength(4))
	assert.False(t, p.Complete())
}

func TestPlayerIgnoresEmptyChunk(t *testing.T) {
	clock := &stubClock{t: 0}
	out := &recordingOutput{}
	p := NewPlayer(PlayerConfig{Output: out, SampleRate: 4, Clock: clock, Logger: testLogger()})

	p.AddPCM16(nil)
	out.mu.Lock()
	assert.Empty(t, out.played)
	out.mu.Unlock()
}

func TestWriterOutputWritesImmediately(t *testing.T) {
	var buf bytes.Buffer
	out := &WriterOutput{W: &buf}
	p := NewPlayer(PlayerConfig{Output: out, SampleRate: 4, Clock: &stubClock{}, Logger: testLogger()})

	data := pcmOfLength(4)
	p.AddPCM16(data)
	assert.Equal(t, data, buf.Bytes())
}
