// pkg/schema/manager.go
package schema

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vlucas/spot/pkg/types"
)

// Manager computes and caches Metadata per definition. Safe for concurrent use.
type Manager struct {
	registry *types.Registry
	naming   NamingStrategy

	mu    sync.RWMutex
	cache map[any]*Metadata
	group singleflight.Group
}

// NewManager creates a manager validating field types against registry.
// A nil naming strategy uses DefaultNamingStrategy.
func NewManager(registry *types.Registry, naming NamingStrategy) *Manager {
	if registry == nil {
		registry = types.NewRegistry()
	}
	if naming == nil {
		naming = defaultNamingStrategy
	}
	return &Manager{
		registry: registry,
		naming:   naming,
		cache:    make(map[any]*Metadata),
	}
}

// Registry returns the type registry the manager validates against.
func (m *Manager) Registry() *types.Registry { return m.registry }

func cacheKey(def Definition) any {
	if k, ok := def.(Keyed); ok {
		return "key:" + k.DefinitionKey()
	}
	return reflect.TypeOf(def)
}

func flightKey(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	t := key.(reflect.Type)
	return "type:" + t.PkgPath() + "." + t.String()
}

// EntityName returns the name used for def in hooks, logs and errors.
func EntityName(def Definition) string {
	if n, ok := def.(Namer); ok {
		return n.EntityName()
	}
	t := reflect.TypeOf(def)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Metadata returns the cached metadata for def, building it on first use.
func (m *Manager) Metadata(def Definition) (*Metadata, error) {
	if def == nil {
		return nil, fmt.Errorf("schema: cannot build metadata for nil definition")
	}
	key := cacheKey(def)

	m.mu.RLock()
	meta, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return meta, nil
	}

	v, err, _ := m.group.Do(flightKey(key), func() (any, error) {
		m.mu.RLock()
		cached, ok := m.cache[key]
		m.mu.RUnlock()
		if ok {
			return cached, nil
		}
		built, err := m.build(def)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.cache[key]; ok {
			return existing, nil
		}
		m.cache[key] = built
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Metadata), nil
}

// Fields returns the normalised fields of def.
func (m *Manager) Fields(def Definition) ([]*Field, error) {
	meta, err := m.Metadata(def)
	if err != nil {
		return nil, err
	}
	return meta.Fields, nil
}

// PrimaryKeyField returns the name of the single primary field.
func (m *Manager) PrimaryKeyField(def Definition) (string, error) {
	meta, err := m.Metadata(def)
	if err != nil {
		return "", err
	}
	return meta.PrimaryKey.Name, nil
}

// RelationsFor returns the declared relations of def.
func (m *Manager) RelationsFor(def Definition) (map[string]Relation, error) {
	meta, err := m.Metadata(def)
	if err != nil {
		return nil, err
	}
	return meta.Relations, nil
}

// DefaultValuesFor returns field defaults of def.
func (m *Manager) DefaultValuesFor(def Definition) (map[string]any, error) {
	meta, err := m.Metadata(def)
	if err != nil {
		return nil, err
	}
	return meta.Defaults(), nil
}

// Reset drops cached metadata for defs, or everything when called without arguments.
func (m *Manager) Reset(defs ...Definition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(defs) == 0 {
		m.cache = make(map[any]*Metadata)
		return
	}
	for _, def := range defs {
		delete(m.cache, cacheKey(def))
	}
}

func (m *Manager) build(def Definition) (*Metadata, error) {
	name := EntityName(def)
	meta := &Metadata{
		Name:       name,
		Type:       reflect.TypeOf(def),
		Datasource: def.Datasource(),
		Options:    map[string]string{},
		Relations:  map[string]Relation{},
		definition: def,
		byName:     make(map[string]*Field),
	}
	if meta.Datasource == "" {
		meta.Datasource = m.naming.DatasourceName(name)
	}
	if c, ok := def.(Connector); ok {
		meta.Connection = c.Connection()
	}
	if o, ok := def.(DatasourceOptioner); ok {
		for k, v := range o.DatasourceOptions() {
			meta.Options[k] = v
		}
	}

	declared := def.Fields()
	meta.Defined = append([]Field(nil), declared...)
	if len(declared) == 0 {
		return nil, &SchemaError{Entity: name, Reason: "no fields defined"}
	}

	var primaries []*Field
	for i := range declared {
		f, err := m.normalise(name, declared[i])
		if err != nil {
			return nil, err
		}
		if _, dup := meta.byName[f.Name]; dup {
			return nil, &SchemaError{Entity: name, Reason: fmt.Sprintf("duplicate field '%s'", f.Name)}
		}
		meta.byName[f.Name] = f
		meta.Fields = append(meta.Fields, f)
		if f.Primary {
			primaries = append(primaries, f)
		}
	}

	switch len(primaries) {
	case 0:
		return nil, &SchemaError{Entity: name, Reason: "no primary key field defined"}
	case 1:
		meta.PrimaryKey = primaries[0]
	default:
		return nil, &SchemaError{Entity: name, Reason: fmt.Sprintf("multiple primary key fields defined (%d)", len(primaries))}
	}

	if r, ok := def.(Relater); ok {
		for relName, rel := range r.Relations() {
			if rel.Entity == nil {
				return nil, &SchemaError{Entity: name, Reason: fmt.Sprintf("relation '%s' has no entity", relName)}
			}
			if rel.Entity == Self {
				rel.Entity = def
			}
			if rel.Through == Self {
				rel.Through = def
			}
			if rel.Kind == HasManyThrough && rel.Through == nil {
				return nil, &SchemaError{Entity: name, Reason: fmt.Sprintf("relation '%s' is HasManyThrough without a Through definition", relName)}
			}
			meta.Relations[relName] = rel
		}
	}

	meta.Indexes = buildIndexes(meta.Fields)
	return meta, nil
}

// normalise applies type defaults and implied flags to a declared field.
func (m *Manager) normalise(entity string, declared Field) (*Field, error) {
	f := declared
	if f.Name == "" {
		return nil, &SchemaError{Entity: entity, Reason: "field without a name"}
	}
	if f.Type == "" {
		f.Type = "string"
	}
	if _, err := m.registry.Lookup(f.Type); err != nil {
		return nil, fmt.Errorf("schema: entity %s field %s: %w", entity, f.Name, err)
	}

	switch f.Type {
	case "string":
		if f.Length == 0 {
			f.Length = 255
		}
	case "decimal":
		if f.Precision == 0 {
			f.Precision = 14
		}
		if f.Scale == 0 {
			f.Scale = 10
		}
	}

	if f.Required || f.Primary {
		f.NotNull = true
	}
	if f.IndexGroup != "" {
		f.Index = true
	}
	if f.UniqueGroup != "" {
		f.Unique = true
	}
	if len(declared.Options) > 0 {
		f.Options = append([]any(nil), declared.Options...)
	}
	if len(declared.Validation) > 0 {
		f.Validation = append([]string(nil), declared.Validation...)
	}
	return &f, nil
}

func buildIndexes(fields []*Field) []*Index {
	byKey := make(map[string]*Index)
	var order []string
	add := func(kind IndexKind, name string, f *Field) {
		key := fmt.Sprintf("%d:%s", kind, name)
		idx, ok := byKey[key]
		if !ok {
			idx = &Index{Name: name, Kind: kind}
			byKey[key] = idx
			order = append(order, key)
		}
		idx.Fields = append(idx.Fields, f)
	}
	for _, f := range fields {
		if f.Primary {
			continue
		}
		if f.Unique {
			add(UniqueIndex, groupOr(f.UniqueGroup, f.Name), f)
		}
		if f.Index {
			add(PlainIndex, groupOr(f.IndexGroup, f.Name), f)
		}
		if f.Fulltext {
			add(FulltextIndex, f.Name, f)
		}
	}

	out := make([]*Index, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func groupOr(group, name string) string {
	if group != "" {
		return group
	}
	return name
}
