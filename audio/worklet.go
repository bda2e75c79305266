package audio

import (
	"fmt"
	"sync"
)

// Processor consumes fixed blocks of mono float samples from an Engine
type Processor interface {
	Process(samples []float32)
}

// Factory constructs a fresh Processor instance
type Factory func() Processor

// Registry maps processor names to factories. Registration is
// write-once per name so two components cannot silently shadow each other.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry is the registry engines use unless configured otherwise
var DefaultRegistry = NewRegistry()

// Register adds a factory under name; registering a duplicate name fails
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("audio: processor %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// New constructs a processor by name
func (r *Registry) New(name string) (Processor, error) {
	r.mu.Lock()
	f, ok := r.factories[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("audio: unknown processor %q", name)
	}
	return f(), nil
}

// ProcessorFunc adapts a plain function to the Processor interface
type ProcessorFunc func(samples []float32)

// Process calls f
func (f ProcessorFunc) Process(samples []float32) {
	f(samples)
}
