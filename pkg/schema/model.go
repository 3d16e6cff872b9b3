// pkg/schema/model.go
package schema

import (
	"fmt"
	"reflect"

	"github.com/go-openapi/inflect"
	"github.com/iancoleman/strcase"
)

// --- Naming Strategy ---

// NamingStrategy derives datasource names for definitions that leave Datasource empty.
type NamingStrategy interface {
	DatasourceName(entityName string) string
}

// DefaultNamingStrategy produces pluralised snake_case names ("PostTag" -> "post_tags").
type DefaultNamingStrategy struct{}

var defaultNamingStrategy NamingStrategy = DefaultNamingStrategy{}

func (DefaultNamingStrategy) DatasourceName(entityName string) string {
	return inflect.Pluralize(strcase.ToSnake(entityName))
}

// --- Errors ---

// SchemaError reports an invalid entity definition.
type SchemaError struct {
	Entity string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: entity %s: %s", e.Entity, e.Reason)
}

// --- Index Representation ---

// IndexKind orders keys in generated DDL.
type IndexKind int

const (
	UniqueIndex IndexKind = iota
	PlainIndex
	FulltextIndex
)

// Index is a (possibly composite) key built from field flags and groups.
type Index struct {
	Name   string // Group name, or the field name for single-field keys.
	Kind   IndexKind
	Fields []*Field // In declaration order.
}

// Columns returns the indexed field names.
func (i *Index) Columns() []string {
	cols := make([]string, len(i.Fields))
	for n, f := range i.Fields {
		cols[n] = f.Name
	}
	return cols
}

// --- Metadata ---

// Metadata is the normalised, cached description of one entity definition.
type Metadata struct {
	Name       string
	Type       reflect.Type
	Datasource string
	Connection string
	Options    map[string]string
	Fields     []*Field // Normalised, in declaration order.
	Defined    []Field  // As declared by the definition.
	PrimaryKey *Field
	Relations  map[string]Relation
	Indexes    []*Index

	definition Definition
	byName     map[string]*Field
}

// Definition returns the definition the metadata was built from.
func (m *Metadata) Definition() Definition { return m.definition }

// Field looks up a normalised field by name.
func (m *Metadata) Field(name string) (*Field, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// HasField reports whether name is a declared field.
func (m *Metadata) HasField(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// FieldType returns the logical type of a field, or "" when unknown.
func (m *Metadata) FieldType(name string) string {
	if f, ok := m.byName[name]; ok {
		return f.Type
	}
	return ""
}

// FieldNames returns field names in declaration order.
func (m *Metadata) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// Defaults returns the fields carrying a non-nil default value.
func (m *Metadata) Defaults() map[string]any {
	out := make(map[string]any)
	for _, f := range m.Fields {
		if f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	return out
}

// Relation looks up a declared relation.
func (m *Metadata) Relation(name string) (Relation, bool) {
	r, ok := m.Relations[name]
	return r, ok
}

// WithStorageTypes returns a copy of m whose field types are passed through
// resolve. Indexes and the primary key point at the copied fields.
func (m *Metadata) WithStorageTypes(resolve func(string) string) *Metadata {
	out := *m
	out.Fields = make([]*Field, len(m.Fields))
	out.byName = make(map[string]*Field, len(m.Fields))
	for i, f := range m.Fields {
		c := *f
		c.Type = resolve(f.Type)
		out.Fields[i] = &c
		out.byName[c.Name] = &c
		if f == m.PrimaryKey {
			out.PrimaryKey = &c
		}
	}
	out.Indexes = make([]*Index, len(m.Indexes))
	for i, idx := range m.Indexes {
		c := &Index{Name: idx.Name, Kind: idx.Kind, Fields: make([]*Field, len(idx.Fields))}
		for n, f := range idx.Fields {
			c.Fields[n] = out.byName[f.Name]
		}
		out.Indexes[i] = c
	}
	return &out
}
