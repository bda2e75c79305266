package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/creastat/infra/telemetry"
)

// Clock supplies a monotonic timeline in seconds. Playback scheduling and
// tests depend on it rather than on wall time directly.
type Clock interface {
	Now() float64
}

// SystemClock is the default Clock, anchored at its creation instant
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock starting at zero
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns seconds elapsed since the clock was created
func (c *SystemClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

type engineState int

const (
	engineRunning engineState = iota
	engineSuspended
	engineClosed
)

// ErrEngineClosed is returned for operations on a closed engine
var ErrEngineClosed = errors.New("audio: engine is closed")

// EngineConfig holds engine configuration
type EngineConfig struct {
	// SampleRate defaults to 16000
	SampleRate int
	// Registry resolves processor names; defaults to the package registry
	Registry *Registry
	Clock    Clock
	Logger   telemetry.Logger
	// BlockBuffer sizes the processing queue (default 16 blocks)
	BlockBuffer int
}

// Engine is a processing context for a single audio graph: sample blocks
// pushed into it are delivered to every attached processor in order, on a
// dedicated goroutine so device callbacks never block on downstream work.
type Engine struct {
	config EngineConfig
	logger telemetry.Logger

	mu     sync.Mutex
	state  engineState
	procs  map[int]Processor
	nextID int

	blocks chan []float32
	done   chan struct{}
}

// NewEngine creates and starts an engine
func NewEngine(config EngineConfig) *Engine {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.Registry == nil {
		config.Registry = DefaultRegistry
	}
	if config.Clock == nil {
		config.Clock = NewSystemClock()
	}
	if config.Logger == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}
	if config.BlockBuffer <= 0 {
		config.BlockBuffer = 16
	}

	e := &Engine{
		config: config,
		logger: config.Logger.WithModule("audio-engine"),
		state:  engineRunning,
		procs:  make(map[int]Processor),
		blocks: make(chan []float32, config.BlockBuffer),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// SampleRate returns the engine's sample rate
func (e *Engine) SampleRate() int {
	return e.config.SampleRate
}

// Now returns the engine's current time in seconds
func (e *Engine) Now() float64 {
	return e.config.Clock.Now()
}

// Attach creates a processor by registered name and wires it into the graph
func (e *Engine) Attach(name string) (*Handle, error) {
	proc, err := e.config.Registry.New(name)
	if err != nil {
		return nil, err
	}
	return e.AttachProcessor(proc)
}

// AttachProcessor wires an already-constructed processor into the graph
func (e *Engine) AttachProcessor(proc Processor) (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == engineClosed {
		return nil, ErrEngineClosed
	}
	id := e.nextID
	e.nextID++
	e.procs[id] = proc
	return &Handle{engine: e, id: id}, nil
}

// Push queues a block of samples for processing. It never blocks: when the
// queue is full the block is dropped, since realtime capture cannot wait.
func (e *Engine) Push(samples []float32) {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	if state != engineRunning {
		return
	}

	select {
	case e.blocks <- samples:
	default:
		e.logger.Debug("dropping audio block, processing queue full")
	}
}

// Suspend pauses processing; pushed blocks are discarded until Resume
func (e *Engine) Suspend() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == engineRunning {
		e.state = engineSuspended
	}
}

// Resume restarts a suspended engine
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == engineSuspended {
		e.state = engineRunning
	}
}

// Closed reports whether the engine has been closed
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == engineClosed
}

// Close stops the processing goroutine and detaches all processors
func (e *Engine) Close() {
	e.mu.Lock()
	if e.state == engineClosed {
		e.mu.Unlock()
		return
	}
	e.state = engineClosed
	e.procs = make(map[int]Processor)
	e.mu.Unlock()
	close(e.done)
}

func (e *Engine) run() {
	for {
		select {
		case <-e.done:
			return
		case block := <-e.blocks:
			e.mu.Lock()
			procs := make([]Processor, 0, len(e.procs))
			for _, p := range e.procs {
				procs = append(procs, p)
			}
			e.mu.Unlock()
			for _, p := range procs {
				p.Process(block)
			}
		}
	}
}

// Handle identifies one attached processor
type Handle struct {
	engine *Engine
	id     int
}

// Detach removes the processor from the engine graph
func (h *Handle) Detach() {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	delete(h.engine.procs, h.id)
}

var (
	cacheMu sync.Mutex
	cache   = make(map[string]*Engine)
)

// AcquireEngine returns the process-wide engine registered under id,
// creating it on first use. A cached engine that was suspended is resumed; a
// cached engine that was closed is replaced. Callers sharing an id share one
// processing graph.
func AcquireEngine(id string, config EngineConfig) *Engine {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if e, ok := cache[id]; ok && !e.Closed() {
		e.Resume()
		return e
	}
	e := NewEngine(config)
	cache[id] = e
	return e
}

// ReleaseEngine closes and evicts the engine registered under id
func ReleaseEngine(id string) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if e, ok := cache[id]; ok {
		e.Close()
		delete(cache, id)
	}
}
