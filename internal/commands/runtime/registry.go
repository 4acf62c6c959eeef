package runtime

import (
	"fmt"
	"sort"
	"sync"
)

// Handler executes one command kind. Execute must be safe to run more than once for the
// same command: retries and crash recovery re-invoke it from scratch.
type Handler interface {
	Name() string
	Default() Policy
	Execute(ctx *Context) Outcome
}

// Registry maps command names to handlers. It is filled at startup; scheduling a name
// that is not registered is rejected.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	name := h.Name()
	if name == "" {
		return fmt.Errorf("handler Name() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler already registered for command=%s", name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) MustRegister(hs ...Handler) {
	for _, h := range hs {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
