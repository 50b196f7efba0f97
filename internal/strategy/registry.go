// Package strategy holds the strategies the app can bind to a connector run.
package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"conductor/internal/connector"
	"conductor/internal/market"
)

// Params configures a strategy instance.
type Params struct {
	Quantity   float64
	FastPeriod int
	SlowPeriod int
	Source     market.Field
}

// Factory builds a strategy from params.
type Factory func(Params) (connector.Strategy, error)

// Registry maps strategy names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds f under name, replacing any earlier entry.
func (r *Registry) Register(name string, f Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || f == nil {
		panic("strategy: register needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the strategy registered under name.
func (r *Registry) New(name string, p Params) (connector.Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %s)", name, strings.Join(r.Names(), ", "))
	}
	return f(p)
}

// Names lists the registered strategies, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Default returns a registry with the built-in strategies.
func Default() *Registry {
	r := NewRegistry()
	r.Register(SMACrossName, func(p Params) (connector.Strategy, error) { return NewSMACross(p) })
	return r
}
