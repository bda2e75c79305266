package audio

import "math"

// volumeDecay smooths the reported level so it falls off gradually between
// loud intervals instead of flickering.
const volumeDecay = 0.95

// volumeIntervalMS is how much captured audio each level reading covers
const volumeIntervalMS = 25

// VolumeMeter is a Processor that reports a decayed RMS level of the samples
// flowing through it, one reading per 25ms of audio. The reported level is
// the greater of the fresh RMS and the previous level decayed, so peaks
// register immediately and fade smoothly.
type VolumeMeter struct {
	interval   int
	emit       func(level float64)
	sumSquares float64
	count      int
	volume     float64
}

// NewVolumeMeter creates a meter for the given sample rate. emit is called
// from the engine's processing goroutine and must not block.
func NewVolumeMeter(sampleRate int, emit func(level float64)) *VolumeMeter {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &VolumeMeter{
		interval: sampleRate * volumeIntervalMS / 1000,
		emit:     emit,
	}
}

// Process accumulates samples and emits a level each full interval
func (m *VolumeMeter) Process(samples []float32) {
	for _, s := range samples {
		m.sumSquares += float64(s) * float64(s)
		m.count++
		if m.count < m.interval {
			continue
		}

		rms := math.Sqrt(m.sumSquares / float64(m.count))
		decayed := m.volume * volumeDecay
		if rms > decayed {
			m.volume = rms
		} else {
			m.volume = decayed
		}
		m.emit(m.volume)
		m.sumSquares = 0
		m.count = 0
	}
}

// Level returns the most recently computed volume
func (m *VolumeMeter) Level() float64 {
	return m.volume
}
