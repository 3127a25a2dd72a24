package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Agent is anything that can run one turn of a conversation. *Loop is the
// only implementation; the interface exists so the router and gateway don't
// need to know about Loop's internals.
type Agent interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// ResolverFunc lazily builds an Agent for an agent key not yet in the
// router's cache.
type ResolverFunc func(agentKey string) (Agent, error)

// Router holds the set of configured agents, resolving and caching them by
// ID. Agents can be registered eagerly (standalone mode, from config.json)
// or resolved lazily via a ResolverFunc.
type Router struct {
	mu       sync.RWMutex
	agents   map[string]Agent
	resolver ResolverFunc
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{agents: make(map[string]Agent)}
}

// Register adds (or replaces) the agent for id.
func (r *Router) Register(id string, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[id] = a
}

// SetResolver installs the fallback resolver used for agent keys not yet
// in the cache.
func (r *Router) SetResolver(fn ResolverFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = fn
}

// Get returns the agent for id, resolving and caching it via the installed
// resolver if it isn't already registered.
func (r *Router) Get(id string) (Agent, error) {
	r.mu.RLock()
	a, ok := r.agents[id]
	resolver := r.resolver
	r.mu.RUnlock()
	if ok {
		return a, nil
	}
	if resolver == nil {
		return nil, fmt.Errorf("agent not found: %s", id)
	}

	resolved, err := resolver(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.agents[id] = resolved
	r.mu.Unlock()
	return resolved, nil
}

// List returns the IDs of every currently cached agent, sorted.
func (r *Router) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InvalidateAgent drops id from the cache, forcing re-resolution on next Get.
func (r *Router) InvalidateAgent(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

// InvalidateAll clears the entire cache, forcing every agent to re-resolve.
func (r *Router) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]Agent)
}
