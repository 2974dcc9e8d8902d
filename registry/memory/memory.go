// Package memory provides an in-memory implementation of the
// AgentRegistry. It is suitable for development, testing, and
// single-node deployments where persistence across restarts is not
// required.
package memory

import (
	"context"
	"sync"

	"github.com/meshwave/agentwave/types"
)

// Registry is an in-memory AgentRegistry. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]types.AgentDefinition
}

// compile-time check that Registry implements types.AgentRegistry.
var _ types.AgentRegistry = (*Registry)(nil)

// New creates an empty Registry.
func New() *Registry {
	return &Registry{defs: make(map[string]types.AgentDefinition)}
}

// Register stores or replaces the definition for name.
func (r *Registry) Register(name string, def types.AgentDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[name] = def
}

// Unregister removes name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.defs, name)
}

// Resolve implements types.AgentRegistry.
func (r *Registry) Resolve(ctx context.Context, name string) (types.AgentDefinition, error) {
	select {
	case <-ctx.Done():
		return types.AgentDefinition{}, ctx.Err()
	default:
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return types.AgentDefinition{}, types.ErrAgentNotFound
	}
	return def, nil
}

// Names returns every registered agent name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	return out
}
