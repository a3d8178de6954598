package providers

import (
	"github.com/paygrid/payment-orchestrator/internal/interfaces"
)

// Registry holds the provider adapters and callback handlers keyed by
// provider name. It is built once at startup and read-only afterward;
// concrete vendor adapters register themselves here.
type Registry struct {
	adapters  map[string]interfaces.ProviderAdapter
	callbacks map[string]interfaces.CallbackHandler
}

func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[string]interfaces.ProviderAdapter),
		callbacks: make(map[string]interfaces.CallbackHandler),
	}
}

func (r *Registry) Register(adapter interfaces.ProviderAdapter) {
	r.adapters[adapter.Name()] = adapter
	if handler, ok := adapter.(interfaces.CallbackHandler); ok {
		r.callbacks[adapter.Name()] = handler
	}
}

func (r *Registry) RegisterCallback(name string, handler interfaces.CallbackHandler) {
	r.callbacks[name] = handler
}

func (r *Registry) Adapter(name string) (interfaces.ProviderAdapter, bool) {
	adapter, ok := r.adapters[name]
	return adapter, ok
}

func (r *Registry) Callback(name string) (interfaces.CallbackHandler, bool) {
	handler, ok := r.callbacks[name]
	return handler, ok
}

// Names lists the registered providers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
