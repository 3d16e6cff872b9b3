// pkg/schema/relation.go
package schema

import "strings"

// RelationKind identifies how a related entity is resolved.
type RelationKind int

const (
	HasOne RelationKind = iota
	HasMany
	HasManyThrough
)

func (k RelationKind) String() string {
	switch k {
	case HasOne:
		return "HasOne"
	case HasMany:
		return "HasMany"
	case HasManyThrough:
		return "HasManyThrough"
	}
	return "Unknown"
}

// Placeholder prefixes recognised in relation conditions.
const (
	EntityRef  = ":entity."
	ThroughRef = ":through."
)

// OrderBy is one ORDER BY term.
type OrderBy struct {
	Field     string
	Direction string
}

// Relation declares how entities of another definition are found from an owner.
//
// String values in Where and ThroughWhere may reference the owner's fields as
// ":entity.<field>". In a HasManyThrough relation, Where may also reference the
// join rows' fields as ":through.<field>".
type Relation struct {
	Kind         RelationKind
	Entity       Definition
	Where        map[string]any
	Order        []OrderBy
	Through      Definition
	ThroughWhere map[string]any
}

// RefField returns the field referenced by a ":entity."/":through." placeholder value.
func RefField(v any, prefix string) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return strings.TrimPrefix(s, prefix), true
}

type selfDefinition struct{}

func (selfDefinition) Datasource() string { return "" }
func (selfDefinition) Fields() []Field    { return nil }

// Self stands in for the owning definition in self-referencing relations.
var Self Definition = selfDefinition{}
