// Package catalog holds the provider event types the service understands.
//
// Each registered type may carry a JSON Schema for its data object. Types
// outside the catalog are still accepted by the ingestion gate but are
// routed to a no-op.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/referral/id"
	"github.com/xraph/referral/internal/entity"
)

// ErrInvalidDefinition is returned when registering a definition without a name.
var ErrInvalidDefinition = errors.New("catalog: definition name is required")

// Catalog is a concurrency-safe registry of event types.
type Catalog struct {
	mu       sync.RWMutex
	types    map[string]*EventType
	patterns []string
}

// New returns an empty catalog. patterns select which registered types are
// dispatched to handlers; with no patterns every registered type is.
func New(patterns ...string) *Catalog {
	return &Catalog{
		types:    make(map[string]*EventType),
		patterns: patterns,
	}
}

// Default returns a catalog with DefaultDefinitions registered and
// dispatch limited to user.* events.
func Default() *Catalog {
	c := New("user.*")
	for _, def := range DefaultDefinitions() {
		if err := c.Register(def); err != nil {
			panic(fmt.Sprintf("catalog: default definition %q: %v", def.Name, err))
		}
	}
	return c
}

// Register adds or replaces a definition by name.
func (c *Catalog) Register(def Definition) error {
	if def.Name == "" {
		return ErrInvalidDefinition
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.types[def.Name]; ok {
		existing.Definition = def
		return nil
	}
	c.types[def.Name] = &EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: def,
	}
	return nil
}

// Lookup returns the event type registered under name.
func (c *Catalog) Lookup(name string) (*EventType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	et, ok := c.types[name]
	return et, ok
}

// Types returns all registered event types sorted by name.
func (c *Catalog) Types() []*EventType {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*EventType, 0, len(c.types))
	for _, et := range c.types {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Definition.Name < out[j].Definition.Name
	})
	return out
}

// Subscribed reports whether a registered type matches one of the
// catalog's dispatch patterns.
func (c *Catalog) Subscribed(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.types[name]; !ok {
		return false
	}
	if len(c.patterns) == 0 {
		return true
	}
	for _, p := range c.patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}
