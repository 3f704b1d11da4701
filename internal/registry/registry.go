package registry

import (
	"fmt"
)

// Module is the interface implemented by collections of handlers that want
// to be registered together, e.g. the built-in handler set.
type Module interface {
	Register(r *Registry)
}

// Registry holds all registered handlers and convergence callbacks for a
// single application instance.
type Registry struct {
	Handlers  map[string]Handler
	Callbacks map[string]ConvergenceFunc
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		Handlers:  make(map[string]Handler),
		Callbacks: make(map[string]ConvergenceFunc),
	}
}

// RegisterHandler registers a node handler under a type name. Registering
// the same name twice panics; that is a wiring bug, not a runtime condition.
func (r *Registry) RegisterHandler(name string, h Handler) {
	if _, ok := r.Handlers[name]; ok {
		panic(fmt.Sprintf("registry: handler %q registered twice", name))
	}
	r.Handlers[name] = h
}

// RegisterCallback registers a convergence callback under a name that
// connection cycle blocks can refer to.
func (r *Registry) RegisterCallback(name string, fn ConvergenceFunc) {
	if _, ok := r.Callbacks[name]; ok {
		panic(fmt.Sprintf("registry: callback %q registered twice", name))
	}
	r.Callbacks[name] = fn
}

// Handler looks up a handler by type name.
func (r *Registry) Handler(name string) (Handler, bool) {
	h, ok := r.Handlers[name]
	return h, ok
}

// Callback looks up a convergence callback by name.
func (r *Registry) Callback(name string) (ConvergenceFunc, bool) {
	fn, ok := r.Callbacks[name]
	return fn, ok
}
