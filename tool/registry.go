package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ErrNameCollision is returned by Discover when two providers contribute
// tools with the same name.
var ErrNameCollision = errors.New("tool name collision")

// ErrNotFound is returned by Registry.Invoke for an unknown tool name.
var ErrNotFound = errors.New("tool not found")

// Registry is an immutable, name-keyed set of tools assembled once at
// startup. It never changes after Discover returns, so lookups need no
// locking.
type Registry struct {
	tools map[string]Tool
}

// Discover collects tools from every provider and builds the registry.
// A duplicate name anywhere in the batch fails the whole discovery: the
// error names both the tool and the fact that nothing was registered.
// Startup proceeds with no registry rather than a partial one.
func Discover(providers ...Provider) (*Registry, error) {
	tools := make(map[string]Tool)

	for _, p := range providers {
		for _, t := range p.Tools() {
			desc := t.Descriptor()
			name := strings.TrimSpace(desc.Name)
			if name == "" {
				return nil, errors.New("discovery failed, nothing registered: provider contributed a tool with no name")
			}
			if _, exists := tools[name]; exists {
				return nil, fmt.Errorf("%w: %q already registered, discovery aborted with nothing registered", ErrNameCollision, name)
			}
			tools[name] = t
			slog.Debug("tool discovered",
				slog.String("tool", name),
				slog.String("side_effect", string(desc.SideEffect)))
		}
	}

	slog.Info("tool discovery complete", slog.Int("tools", len(tools)))
	return &Registry{tools: tools}, nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every descriptor in name order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Invoke runs the named tool directly, without argument resolution.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return t.Invoke(ctx, args)
}

// Catalog renders a prompt-ready listing of every tool: name, description,
// and parameter names. It feeds the decision policy.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, d := range r.List() {
		fmt.Fprintf(&b, "- %s: %s", d.Name, d.Description)
		if names := d.Params.Names(); len(names) > 0 {
			fmt.Fprintf(&b, " (args: %s)", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
