package arbitrage

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultMatcher is used when configuration does not name one.
const DefaultMatcher = "cross_product"

// Registry holds named matchers for selection by config.
type Registry struct {
	matchers map[string]Matcher
	mu       sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add matchers.
func NewRegistry() *Registry {
	return &Registry{matchers: make(map[string]Matcher)}
}

// DefaultRegistry returns a registry with every built-in matcher.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, m := range []Matcher{NewCrossProduct(), NewSortedMerge()} {
		r.Register(m.Name(), m)
	}
	return r
}

// Register adds a matcher under the given name.
func (r *Registry) Register(name string, m Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchers[name] = m
}

// Get returns the matcher by name, or an error if not found. An empty name
// selects DefaultMatcher.
func (r *Registry) Get(name string) (Matcher, error) {
	if name == "" {
		name = DefaultMatcher
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matchers[name]
	if !ok {
		return nil, fmt.Errorf("arbitrage matcher %q not found", name)
	}
	return m, nil
}

// List returns all registered matcher names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.matchers))
	for n := range r.matchers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
