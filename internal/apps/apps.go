// Package apps holds the fixture applications the CLI and the scenario
// harness mount. Each one exercises a different hook primitive.
package apps

import (
	"slices"

	"github.com/roach88/blockrt/internal/engine"
)

// App is a named root component.
type App struct {
	Name        string
	Description string
	Root        *engine.Component
}

// Registry maps app names to apps.
type Registry struct {
	apps map[string]App
}

// NewRegistry creates a registry holding apps.
func NewRegistry(apps ...App) *Registry {
	r := &Registry{apps: make(map[string]App, len(apps))}
	for _, a := range apps {
		r.apps[a.Name] = a
	}
	return r
}

// Default returns the registry of built-in apps.
func Default() *Registry {
	return NewRegistry(
		App{Name: "counter", Description: "local state and actions", Root: Counter},
		App{Name: "todo", Description: "keyed lists and tombstones", Root: Todo},
		App{Name: "loader", Description: "async data from the kv service", Root: Loader},
		App{Name: "live", Description: "realtime channel subscription", Root: Live},
		App{Name: "ticker", Description: "rerender effects", Root: Ticker},
	)
}

// Lookup returns the root component of the named app.
func (r *Registry) Lookup(name string) (*engine.Component, bool) {
	a, ok := r.apps[name]
	if !ok {
		return nil, false
	}
	return a.Root, true
}

// List returns every app sorted by name.
func (r *Registry) List() []App {
	out := make([]App, 0, len(r.apps))
	for _, a := range r.apps {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b App) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out
}
