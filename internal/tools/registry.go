package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/agentgate/internal/bus"
	"github.com/nextlevelbuilder/agentgate/internal/providers"
	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// Tool is anything the agent loop can offer to the LLM as a callable
// function and execute on its behalf.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// SessionStoreAware tools receive the session store once it's constructed,
// since that happens after tool registration in cmd/gateway.go's wiring order.
type SessionStoreAware interface {
	SetSessionStore(s store.SessionStore)
}

// BusAware tools receive the message bus once it's constructed.
type BusAware interface {
	SetMessageBus(b *bus.MessageBus)
}

// Registry holds the tools available to agent loops and dispatches calls by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tool, replacing any existing tool of the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool's name, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// WireSessionStore injects sess into every registered tool that wants it.
func (r *Registry) WireSessionStore(sess store.SessionStore) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if aware, ok := t.(SessionStoreAware); ok {
			aware.SetSessionStore(sess)
		}
	}
}

// WireMessageBus injects msgBus into every registered tool that wants it.
func (r *Registry) WireMessageBus(msgBus *bus.MessageBus) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if aware, ok := t.(BusAware); ok {
			aware.SetMessageBus(msgBus)
		}
	}
}

// ExecuteWithContext runs the named tool's Execute with args, returning an
// error-shaped Result if the tool doesn't exist.
func (r *Registry) ExecuteWithContext(ctx context.Context, name string, args map[string]interface{}) *Result {
	tool, ok := r.Get(name)
	if !ok {
		return ErrorResult("unknown tool: " + name)
	}
	return tool.Execute(ctx, args)
}

// ToProviderDef converts a Tool into the wire format the LLM providers expect.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
