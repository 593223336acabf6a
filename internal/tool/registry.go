package tool

import (
	"context"
	"strings"
	"sync"

	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

// Registry manages tool registration and lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, keyed case-insensitively by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(t.Name())
	if _, exists := r.tools[key]; !exists {
		r.order = append(r.order, key)
	}
	r.tools[key] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.ToLower(name)]
	return t, ok
}

// List returns every registered tool in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.tools[key])
	}
	return out
}

// Manifests renders the registry as the ToolManifest list the provider
// layer surfaces to the model.
func (r *Registry) Manifests() []provider.ToolManifest {
	tools := r.List()
	out := make([]provider.ToolManifest, 0, len(tools))
	for _, t := range tools {
		out = append(out, provider.ToolManifest{
			Name:            t.Name(),
			Description:     t.Description(),
			ParameterSchema: t.ParameterSchema(),
		})
	}
	return out
}

// Execute runs a registered tool by name, synthesizing a "tool not
// found" error result when name doesn't match anything registered.
func (r *Registry) Execute(ctx context.Context, callID, name string, arguments map[string]any, progress ProgressSink) message.ToolResult {
	t, ok := r.Get(name)
	if !ok {
		return errorResult("Tool not found: " + name)
	}
	return t.Execute(ctx, callID, arguments, progress)
}

// DefaultRegistry is the process-wide default tool registry, populated
// by each tool's init().
var DefaultRegistry = NewRegistry()

// Register adds a tool to the default registry.
func Register(t Tool) { DefaultRegistry.Register(t) }
