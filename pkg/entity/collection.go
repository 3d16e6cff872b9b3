// pkg/entity/collection.go
package entity

import (
	"fmt"
	"iter"
)

// Collection is a read-only ordered set of entities of one definition.
type Collection struct {
	name       string
	entities   []*Entity
	identities []any
}

// NewCollection wraps entities, recording their distinct primary keys in order.
func NewCollection(name string, entities []*Entity) *Collection {
	c := &Collection{name: name, entities: entities}
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		pk := e.PrimaryKey()
		if pk == nil {
			continue
		}
		key := fmt.Sprintf("%T:%v", pk, pk)
		if seen[key] {
			continue
		}
		seen[key] = true
		c.identities = append(c.identities, pk)
	}
	return c
}

// EntityName returns the name of the collected definition.
func (c *Collection) EntityName() string { return c.name }

// Len returns the number of entities.
func (c *Collection) Len() int { return len(c.entities) }

// First returns the first entity, or nil when empty.
func (c *Collection) First() *Entity {
	if len(c.entities) == 0 {
		return nil
	}
	return c.entities[0]
}

// At returns the entity at i.
func (c *Collection) At(i int) *Entity { return c.entities[i] }

// Entities returns a copy of the entity slice.
func (c *Collection) Entities() []*Entity {
	return append([]*Entity(nil), c.entities...)
}

// All iterates entities in order.
func (c *Collection) All() iter.Seq2[int, *Entity] {
	return func(yield func(int, *Entity) bool) {
		for i, e := range c.entities {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Identities returns the distinct primary key values.
func (c *Collection) Identities() []any {
	return append([]any(nil), c.identities...)
}

// Column returns the values of field across the collection.
func (c *Collection) Column(field string) []any {
	out := make([]any, len(c.entities))
	for i, e := range c.entities {
		out[i] = e.Get(field)
	}
	return out
}

// Maps returns each entity's Data.
func (c *Collection) Maps() []map[string]any {
	out := make([]map[string]any, len(c.entities))
	for i, e := range c.entities {
		out[i] = e.Data()
	}
	return out
}
