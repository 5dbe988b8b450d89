package widget

import (
	"sort"
	"sync"
)

// Renderer produces a presentation of a client-managed widget from the
// arguments the server supplied on the client_widget item. The chat core
// never interprets the result; it is handed to the presentation layer.
type Renderer interface {
	Render(itemID string, args map[string]any) (any, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(itemID string, args map[string]any) (any, error)

func (f RendererFunc) Render(itemID string, args map[string]any) (any, error) {
	return f(itemID, args)
}

// Registry maps widget names to their client-side renderers. Construct one
// per application instance and pass it to the rendering layer; there is no
// process-wide registry.
type Registry struct {
	mu      sync.RWMutex
	widgets map[string]Renderer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{widgets: make(map[string]Renderer)}
}

// Register binds a renderer to a widget name, replacing any existing one.
func (r *Registry) Register(name string, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.widgets[name] = renderer
}

// Get returns the renderer for a name, nil when not registered.
func (r *Registry) Get(name string) Renderer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.widgets[name]
}

// Has reports whether a widget name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.widgets[name]
	return ok
}

// Names returns the registered widget names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.widgets))
	for name := range r.widgets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a widget name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.widgets, name)
}

// Clear removes all registrations.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.widgets = make(map[string]Renderer)
}
