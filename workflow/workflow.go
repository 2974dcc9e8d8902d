// Package workflow builds types.Task lists from named, reusable
// templates, so callers submit a template name and a parameter bag
// instead of hand-assembling a task graph for common shapes.
package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshwave/agentwave/types"
)

// Template expands a parameter bag into a concrete task list. Expand
// should return an *types.Error{Kind: types.ErrorInvalidWorkflow} when
// params fail validation or are otherwise unusable.
type Template interface {
	Expand(ctx context.Context, params map[string]any) ([]types.Task, error)
}

// FuncTemplate adapts a plain function to the Template interface, for
// templates that are easier to express as Go code than as YAML.
type FuncTemplate func(ctx context.Context, params map[string]any) ([]types.Task, error)

// Expand implements Template.
func (f FuncTemplate) Expand(ctx context.Context, params map[string]any) ([]types.Task, error) {
	return f(ctx, params)
}

// Registry maps template names to Templates. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// Register stores or replaces the template for name.
func (r *Registry) Register(name string, tmpl Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = tmpl
}

// Expand resolves name and expands it with params. Returns
// types.ErrorInvalidWorkflow if name is not registered.
func (r *Registry) Expand(ctx context.Context, name string, params map[string]any) ([]types.Task, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("unknown workflow template %q", name))
	}
	return tmpl.Expand(ctx, params)
}

// Names returns every registered template name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.templates))
	for name := range r.templates {
		out = append(out, name)
	}
	return out
}
