package apps

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/danmuck/tokend/internal/device"
	"github.com/danmuck/tokend/internal/node"
)

// Registry stores apps by name. Registration normally happens at startup;
// lookups stay safe under concurrent sessions.
type Registry struct {
	mu    sync.RWMutex
	items map[string]App
}

var _ node.AppSource = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]App)}
}

// Register adds an app. Names are unique; re-registering is an error.
func (r *Registry) Register(app App) error {
	if err := validate(app); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[app.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAppExists, app.Name)
	}
	r.items[app.Name] = app
	return nil
}

// Names returns the registered app names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// List returns the registered apps sorted by name.
func (r *Registry) List() []App {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]App, 0, len(r.items))
	for _, app := range r.items {
		list = append(list, app)
	}
	slices.SortFunc(list, func(a, b App) int { return cmp.Compare(a.Name, b.Name) })
	return list
}

// Build materializes the named app over a live connection.
func (r *Registry) Build(ctx context.Context, name string, conn device.Connection) (node.Node, error) {
	r.mu.RLock()
	app, ok := r.items[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApp, name)
	}
	return app.Build(ctx, conn)
}

var defaultRegistry = NewRegistry()

// Register adds an app to the process-wide registry.
func Register(app App) error { return defaultRegistry.Register(app) }

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }
