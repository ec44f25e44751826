package tools

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
)

// Registry is an immutable name -> tool mapping.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a Registry from the given tools. When two tools share a
// name the last one wins. Tools without a handler are advertised but fail on
// execution.
func NewRegistry(defs ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(defs))}
	for _, d := range defs {
		if d.Descriptor.Parameters == nil {
			d.Descriptor.Parameters = map[string]ParameterSpec{}
		}
		r.tools[d.Descriptor.Name] = d
	}
	return r
}

// List returns a copy of every descriptor keyed by tool name.
func (r *Registry) List() map[string]Descriptor {
	out := make(map[string]Descriptor, len(r.tools))
	for name, t := range r.tools {
		d := t.Descriptor
		d.Parameters = maps.Clone(d.Parameters)
		out[name] = d
	}
	return out
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.tools))
}

// Execute invokes the named tool with params. An empty params value is passed
// to the handler as {}. It returns *UnknownToolError when name is not
// registered.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok || t.Handler == nil {
		return nil, &UnknownToolError{Name: name}
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	return t.Handler(ctx, params)
}
