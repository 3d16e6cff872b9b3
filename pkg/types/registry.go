// pkg/types/registry.go
package types

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownType is matched by every UnknownTypeError.
var ErrUnknownType = errors.New("types: unknown type")

// UnknownTypeError reports a lookup of a logical type that was never registered.
type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("types: type '%s' not registered", e.Name)
}

func (e *UnknownTypeError) Is(target error) bool { return target == ErrUnknownType }

// Handler converts values of one logical field type.
// Cast normalises an in-memory value, Load converts from the storage
// representation and Dump converts back to it.
type Handler interface {
	Cast(value any) (any, error)
	Load(raw any) (any, error)
	Dump(value any) (any, error)
}

// Registry maps logical type names to handlers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry with the built-in handlers registered.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, name := range []string{"string", "text"} {
		r.handlers[name] = String{}
	}
	for _, name := range []string{"int", "integer", "timestamp", "year", "month", "day"} {
		r.handlers[name] = Integer{}
	}
	for _, name := range []string{"float", "double", "decimal"} {
		r.handlers[name] = Float{}
	}
	for _, name := range []string{"bool", "boolean"} {
		r.handlers[name] = Boolean{}
	}
	for _, name := range []string{"datetime", "date"} {
		r.handlers[name] = Datetime{}
	}
	r.handlers["serialized"] = Serialized{}
	r.handlers["uuid"] = UUID{}
	r.handlers["json"] = JSON{}
	return r
}

// Register associates name with h, replacing only a previous handler of the same name.
func (r *Registry) Register(name string, h Handler) {
	if name == "" {
		panic("types: Register called with empty type name")
	}
	if h == nil {
		panic("types: Register handler is nil for type " + name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Lookup returns the handler registered for name.
func (r *Registry) Lookup(name string) (Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{Name: name}
	}
	return h, nil
}

// StorageType follows StorageTyper handlers from name to the type a dialect
// maps to a column. Names without such a handler resolve to themselves.
func (r *Registry) StorageType(name string) string {
	seen := make(map[string]bool)
	for !seen[name] {
		seen[name] = true
		h, err := r.Lookup(name)
		if err != nil {
			return name
		}
		st, ok := h.(StorageTyper)
		if !ok || st.StorageType() == "" {
			return name
		}
		name = st.StorageType()
	}
	return name
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cast looks up the handler for typeName and casts value with it.
func (r *Registry) Cast(typeName string, value any) (any, error) {
	h, err := r.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return h.Cast(value)
}

// Load looks up the handler for typeName and loads raw with it.
func (r *Registry) Load(typeName string, raw any) (any, error) {
	h, err := r.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return h.Load(raw)
}

// Dump looks up the handler for typeName and dumps value with it.
func (r *Registry) Dump(typeName string, value any) (any, error) {
	h, err := r.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return h.Dump(value)
}
