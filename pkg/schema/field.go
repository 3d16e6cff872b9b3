// pkg/schema/field.go
package schema

// Field describes one persisted attribute of an entity.
type Field struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"` // Logical type registered in types.Registry. Defaults to "string".
	Default   any    `yaml:"default"`
	Length    int    `yaml:"length"`
	Precision int    `yaml:"precision"`
	Scale     int    `yaml:"scale"`

	Required bool `yaml:"required"` // Implies NotNull.
	NotNull  bool `yaml:"notNull"`
	Unsigned bool `yaml:"unsigned"`
	Primary  bool `yaml:"primary"`
	Serial   bool `yaml:"serial"` // Auto-increment.

	// A non-empty group name implies the flag and shares one composite key
	// between every field naming the same group.
	Index       bool   `yaml:"index"`
	IndexGroup  string `yaml:"indexGroup"`
	Unique      bool   `yaml:"unique"`
	UniqueGroup string `yaml:"uniqueGroup"`
	Fulltext    bool   `yaml:"fulltext"`

	Options    []any    `yaml:"options"`    // Allowed values.
	Validation []string `yaml:"validation"` // Validator rules such as "email" or "min=4".
}

// IsNullable reports whether the column accepts NULL.
func (f *Field) IsNullable() bool {
	return !(f.NotNull || f.Required || f.Primary)
}

// Definition is implemented by every entity type known to the mapper.
type Definition interface {
	// Datasource is the table name. Empty derives one from the type name.
	Datasource() string
	Fields() []Field
}

// Relater is implemented by definitions that declare relations.
type Relater interface {
	Relations() map[string]Relation
}

// Connector selects a named connection for the entity.
type Connector interface {
	Connection() string
}

// DatasourceOptioner supplies table options such as engine, charset or collate.
type DatasourceOptioner interface {
	DatasourceOptions() map[string]string
}

// Namer overrides the entity name used for hooks, logging and relation lookups.
type Namer interface {
	EntityName() string
}

// Keyed lets definitions that share one Go type (such as YAML-loaded ones)
// be cached separately.
type Keyed interface {
	DefinitionKey() string
}
