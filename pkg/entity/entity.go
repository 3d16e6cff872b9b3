// pkg/entity/entity.go
package entity

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/vlucas/spot/pkg/schema"
	"github.com/vlucas/spot/pkg/types"
)

// Entity is a row of one definition. It keeps the values loaded from storage
// apart from the values changed since, so updates only write what changed.
type Entity struct {
	meta     *schema.Metadata
	registry *types.Registry

	data      map[string]any // unmodified
	modified  map[string]any
	errors    map[string][]string
	relations map[string]any
	isNew     bool
}

// New returns a new (unsaved) entity seeded with field defaults and then data.
// Values in data are cast and treated as unmodified.
func New(meta *schema.Metadata, registry *types.Registry, data map[string]any) (*Entity, error) {
	e := newEntity(meta, registry)
	e.isNew = true
	if err := e.Merge(meta.Defaults(), false); err != nil {
		return nil, err
	}
	if err := e.Merge(data, false); err != nil {
		return nil, err
	}
	return e, nil
}

// Load builds a persisted entity from a storage row, converting every known
// field with its type handler.
func Load(meta *schema.Metadata, registry *types.Registry, row map[string]any) (*Entity, error) {
	e := newEntity(meta, registry)
	for k, raw := range row {
		f, ok := meta.Field(k)
		if !ok {
			e.data[k] = raw
			continue
		}
		v, err := registry.Load(f.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("entity: loading %s.%s: %w", meta.Name, k, err)
		}
		e.data[k] = v
	}
	return e, nil
}

func newEntity(meta *schema.Metadata, registry *types.Registry) *Entity {
	return &Entity{
		meta:      meta,
		registry:  registry,
		data:      make(map[string]any),
		modified:  make(map[string]any),
		errors:    make(map[string][]string),
		relations: make(map[string]any),
	}
}

// Meta returns the entity's metadata.
func (e *Entity) Meta() *schema.Metadata { return e.meta }

// Name returns the entity name.
func (e *Entity) Name() string { return e.meta.Name }

func (e *Entity) cast(field string, value any) (any, error) {
	f, ok := e.meta.Field(field)
	if !ok {
		return value, nil
	}
	v, err := e.registry.Cast(f.Type, value)
	if err != nil {
		return nil, fmt.Errorf("entity: setting %s.%s: %w", e.meta.Name, field, err)
	}
	return v, nil
}

// Get returns the modified value of field, falling back to the unmodified one.
func (e *Entity) Get(field string) any {
	if v, ok := e.modified[field]; ok {
		return v
	}
	return e.data[field]
}

// Has reports whether field holds any value, modified or not.
func (e *Entity) Has(field string) bool {
	if _, ok := e.modified[field]; ok {
		return true
	}
	_, ok := e.data[field]
	return ok
}

// Set casts value by the field's type and records it as modified.
func (e *Entity) Set(field string, value any) error {
	v, err := e.cast(field, value)
	if err != nil {
		return err
	}
	e.modified[field] = v
	return nil
}

// Merge applies data as modified values, or as unmodified values when modified is false.
func (e *Entity) Merge(data map[string]any, modified bool) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := e.cast(k, data[k])
		if err != nil {
			return err
		}
		if modified {
			e.modified[k] = v
		} else {
			e.data[k] = v
		}
	}
	return nil
}

// Data returns every value, modified values taking precedence.
func (e *Entity) Data() map[string]any {
	out := make(map[string]any, len(e.data)+len(e.modified))
	for k, v := range e.data {
		out[k] = v
	}
	for k, v := range e.modified {
		out[k] = v
	}
	return out
}

// DataModified returns only the values that differ from their unmodified counterpart.
func (e *Entity) DataModified() map[string]any {
	out := make(map[string]any)
	for k, v := range e.modified {
		if e.IsModified(k) {
			out[k] = v
		}
	}
	return out
}

// DataUnmodified returns the values as loaded (or as seeded for new entities).
func (e *Entity) DataUnmodified() map[string]any {
	out := make(map[string]any, len(e.data))
	for k, v := range e.data {
		out[k] = v
	}
	return out
}

// IsModified reports whether field changed. Without arguments it reports
// whether any field changed.
//
// A field compares strictly when either side is nil and loosely otherwise,
// so "1" and 1 are equal but "" and nil are not.
func (e *Entity) IsModified(field ...string) bool {
	if len(field) == 0 {
		for k := range e.modified {
			if e.IsModified(k) {
				return true
			}
		}
		return false
	}
	name := field[0]
	newVal, ok := e.modified[name]
	if !ok {
		return false
	}
	oldVal, had := e.data[name]
	if !had {
		return true
	}
	return !looselyEqual(oldVal, newVal)
}

func looselyEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return normalise(a) == normalise(b)
}

func normalise(v any) string {
	if s, err := (types.String{}).Cast(v); err == nil {
		if str, ok := s.(string); ok {
			return str
		}
	}
	return fmt.Sprint(v)
}

// Commit folds modified values into the unmodified set and marks the entity persisted.
func (e *Entity) Commit() {
	for k, v := range e.modified {
		e.data[k] = v
	}
	e.modified = make(map[string]any)
	e.isNew = false
}

// IsNew reports whether the entity has not been persisted yet.
func (e *Entity) IsNew() bool { return e.isNew }

// SetNew overrides the persisted flag.
func (e *Entity) SetNew(isNew bool) { e.isNew = isNew }

// PrimaryKey returns the value of the primary key field.
func (e *Entity) PrimaryKey() any {
	return e.Get(e.meta.PrimaryKey.Name)
}

// Dump converts field values to their storage form. Only declared fields are
// included; with modifiedOnly, only fields reported by IsModified.
func (e *Entity) Dump(modifiedOnly bool) (map[string]any, error) {
	src := e.Data()
	if modifiedOnly {
		src = e.DataModified()
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		f, ok := e.meta.Field(k)
		if !ok {
			continue
		}
		d, err := e.registry.Dump(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("entity: dumping %s.%s: %w", e.meta.Name, k, err)
		}
		out[k] = d
	}
	return out, nil
}

// --- Errors ---

// Errors returns validation messages keyed by field.
func (e *Entity) Errors() map[string][]string {
	out := make(map[string][]string, len(e.errors))
	for k, v := range e.errors {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// FieldErrors returns the messages recorded for one field.
func (e *Entity) FieldErrors(field string) []string {
	return append([]string(nil), e.errors[field]...)
}

// Error records a message against field.
func (e *Entity) Error(field, msg string) {
	e.errors[field] = append(e.errors[field], msg)
}

// SetErrors replaces all messages.
func (e *Entity) SetErrors(errs map[string][]string) {
	e.errors = make(map[string][]string, len(errs))
	for k, v := range errs {
		e.errors[k] = append([]string(nil), v...)
	}
}

// HasErrors reports whether any message is recorded, or any for field when given.
func (e *Entity) HasErrors(field ...string) bool {
	if len(field) > 0 {
		return len(e.errors[field[0]]) > 0
	}
	return len(e.errors) > 0
}

// --- Relations ---

// Relation returns a loaded relation value (an *Entity or *Collection).
func (e *Entity) Relation(name string) (any, bool) {
	v, ok := e.relations[name]
	return v, ok
}

// SetRelation stores a loaded relation value.
func (e *Entity) SetRelation(name string, v any) {
	e.relations[name] = v
}
