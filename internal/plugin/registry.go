package plugin

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Factory constructs a plugin instance for one activated source.
type Factory func() (Plugin, error)

// ErrDuplicateName is returned when a name is registered twice.
var ErrDuplicateName = eris.New("plugin: duplicate name")

// ErrUnknownPlugin is returned when resolving an unregistered name. The
// orchestrator treats it as fatal: the run never starts fetching.
var ErrUnknownPlugin = eris.New("plugin: unknown plugin")

// Registry maps source names to factories. Safe for concurrent use;
// construct once per process and inject.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates a source name with a constructor. Registering the
// same name twice fails with ErrDuplicateName.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return eris.Wrapf(ErrDuplicateName, "%q already registered", name)
	}
	r.factories[name] = factory
	zap.L().Debug("plugin: registered", zap.String("name", name))
	return nil
}

// Resolve instantiates the requested plugins, preserving the order of
// names for deterministic fetch scheduling. Any unregistered name fails
// the whole resolution with ErrUnknownPlugin.
func (r *Registry) Resolve(names []string) ([]Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugins := make([]Plugin, 0, len(names))
	for _, name := range names {
		factory, ok := r.factories[name]
		if !ok {
			return nil, eris.Wrapf(ErrUnknownPlugin, "%q (registered: %v)", name, r.namesLocked())
		}
		p, err := factory()
		if err != nil {
			return nil, eris.Wrapf(err, "plugin: instantiate %q", name)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// List returns all registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
