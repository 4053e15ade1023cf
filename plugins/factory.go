package plugins

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a plugin instance from its declaration.
type Factory func(info Info) (Plugin, error)

var registry = struct {
	sync.RWMutex
	factories map[string]Factory
}{factories: make(map[string]Factory)}

// Register makes a plugin factory available under pkg. Plugins call it from
// init(); registering the same package twice panics.
func Register(pkg string, f Factory) {
	if pkg == "" || f == nil {
		panic("plugins: Register with empty package or nil factory")
	}
	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.factories[pkg]; dup {
		panic(fmt.Sprintf("plugins: Register called twice for package %q", pkg))
	}
	registry.factories[pkg] = f
}

// Lookup returns the factory registered for pkg.
func Lookup(pkg string) (Factory, error) {
	registry.RLock()
	defer registry.RUnlock()
	f, ok := registry.factories[pkg]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFactoryNotFound, pkg)
	}
	return f, nil
}

// Registered lists the registered packages in lexical order.
func Registered() []string {
	registry.RLock()
	defer registry.RUnlock()
	out := make([]string, 0, len(registry.factories))
	for k := range registry.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// unregister is used by tests to keep the global table clean.
func unregister(pkg string) {
	registry.Lock()
	delete(registry.factories, pkg)
	registry.Unlock()
}
