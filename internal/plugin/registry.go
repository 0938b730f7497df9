package plugin

import (
	"fmt"
	"log/slog"
	"sort"
)

// InputFactory creates a fresh input unit. The logger is already scoped to
// the plugin instance.
type InputFactory func(log *slog.Logger) Input

// ProcessorFactory creates a fresh processor unit.
type ProcessorFactory func(log *slog.Logger) Processor

// OutputFactory creates a fresh output unit.
type OutputFactory func(log *slog.Logger) Output

// Registry maps plugin names to factories, one namespace per unit kind.
// A name may be registered in several namespaces ("file" is both an input
// and an output).
type Registry struct {
	inputs     map[string]InputFactory
	processors map[string]ProcessorFactory
	outputs    map[string]OutputFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inputs:     make(map[string]InputFactory),
		processors: make(map[string]ProcessorFactory),
		outputs:    make(map[string]OutputFactory),
	}
}

// RegisterInput adds an input factory under name.
func (r *Registry) RegisterInput(name string, f InputFactory) error {
	if _, dup := r.inputs[name]; dup {
		return fmt.Errorf("input plugin %q already registered", name)
	}
	r.inputs[name] = f
	return nil
}

// RegisterProcessor adds a processor factory under name.
func (r *Registry) RegisterProcessor(name string, f ProcessorFactory) error {
	if _, dup := r.processors[name]; dup {
		return fmt.Errorf("processor plugin %q already registered", name)
	}
	r.processors[name] = f
	return nil
}

// RegisterOutput adds an output factory under name.
func (r *Registry) RegisterOutput(name string, f OutputFactory) error {
	if _, dup := r.outputs[name]; dup {
		return fmt.Errorf("output plugin %q already registered", name)
	}
	r.outputs[name] = f
	return nil
}

// NewInput instantiates the named input unit.
func (r *Registry) NewInput(name string, log *slog.Logger) (Input, error) {
	f, ok := r.inputs[name]
	if !ok {
		return nil, fmt.Errorf("unknown input plugin %q (have %v)", name, r.InputNames())
	}
	return f(scoped(log, name)), nil
}

// NewProcessor instantiates the named processor unit.
func (r *Registry) NewProcessor(name string, log *slog.Logger) (Processor, error) {
	f, ok := r.processors[name]
	if !ok {
		return nil, fmt.Errorf("unknown processor plugin %q (have %v)", name, r.ProcessorNames())
	}
	return f(scoped(log, name)), nil
}

// NewOutput instantiates the named output unit.
func (r *Registry) NewOutput(name string, log *slog.Logger) (Output, error) {
	f, ok := r.outputs[name]
	if !ok {
		return nil, fmt.Errorf("unknown output plugin %q (have %v)", name, r.OutputNames())
	}
	return f(scoped(log, name)), nil
}

// InputNames returns the registered input plugin names, sorted.
func (r *Registry) InputNames() []string { return sortedKeys(r.inputs) }

// ProcessorNames returns the registered processor plugin names, sorted.
func (r *Registry) ProcessorNames() []string { return sortedKeys(r.processors) }

// OutputNames returns the registered output plugin names, sorted.
func (r *Registry) OutputNames() []string { return sortedKeys(r.outputs) }

func scoped(log *slog.Logger, name string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With("plugin", name)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
