package extract

import (
	"sort"
	"sync"

	"github.com/jward/msgxref/internal/typesys"
)

// CommandSet answers membership of dispatched command types.
type CommandSet interface {
	Contains(name string) bool
}

// CommandTypes is the registry of types that appear as the first parameter
// of a command handler.
type CommandTypes struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewCommandTypes returns an empty registry.
func NewCommandTypes() *CommandTypes {
	return &CommandTypes{names: make(map[string]struct{})}
}

// Add records t's erased name.
func (c *CommandTypes) Add(t typesys.Descriptor) {
	if !t.IsKnown() {
		return
	}
	c.mu.Lock()
	c.names[t.Name()] = struct{}{}
	c.mu.Unlock()
}

// Contains implements CommandSet.
func (c *CommandTypes) Contains(name string) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	_, ok := c.names[name]
	c.mu.RUnlock()
	return ok
}

// Merge returns a new registry holding the union of c and other.
func (c *CommandTypes) Merge(other *CommandTypes) *CommandTypes {
	out := NewCommandTypes()
	for _, src := range []*CommandTypes{c, other} {
		if src == nil {
			continue
		}
		src.mu.RLock()
		for n := range src.names {
			out.names[n] = struct{}{}
		}
		src.mu.RUnlock()
	}
	return out
}

// Missing returns the sorted names of c that other lacks.
func (c *CommandTypes) Missing(other *CommandTypes) []string {
	var out []string
	for _, n := range c.Names() {
		if !other.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

// Names returns the sorted registry contents.
func (c *CommandTypes) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.names))
	for n := range c.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered names.
func (c *CommandTypes) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}
