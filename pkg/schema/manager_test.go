// pkg/schema/manager_test.go
package schema

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlucas/spot/pkg/types"
)

// --- Test Definitions ---

type Post struct{}

func (Post) Datasource() string { return "test_posts" }
func (Post) Fields() []Field {
	return []Field{
		{Name: "id", Type: "integer", Primary: true, Serial: true},
		{Name: "title", Type: "string", Required: true},
		{Name: "body", Type: "text", Required: true},
		{Name: "status", Type: "integer", Default: 0, Index: true},
		{Name: "price", Type: "decimal"},
		{Name: "author_id", Type: "integer", IndexGroup: "author_date"},
		{Name: "date_created", Type: "datetime", IndexGroup: "author_date"},
	}
}
func (Post) Relations() map[string]Relation {
	return map[string]Relation{
		"comments": {Kind: HasMany, Entity: Comment{}, Where: map[string]any{"post_id": ":entity.id"}},
		"parent":   {Kind: HasOne, Entity: Self, Where: map[string]any{"id": ":entity.parent_id"}},
	}
}
func (Post) DatasourceOptions() map[string]string { return map[string]string{"engine": "InnoDB"} }

type Comment struct{}

func (Comment) Datasource() string { return "" }
func (Comment) Fields() []Field {
	return []Field{
		{Name: "id", Type: "integer", Primary: true, Serial: true},
		{Name: "post_id", Type: "integer", Index: true},
		{Name: "email", UniqueGroup: "email_name"},
		{Name: "name", UniqueGroup: "email_name"},
	}
}
func (Comment) Connection() string { return "replica" }

type NoPrimary struct{}

func (NoPrimary) Datasource() string { return "nope" }
func (NoPrimary) Fields() []Field    { return []Field{{Name: "name"}} }

type TwoPrimaries struct{}

func (TwoPrimaries) Datasource() string { return "nope" }
func (TwoPrimaries) Fields() []Field {
	return []Field{{Name: "a", Primary: true}, {Name: "b", Primary: true}}
}

type UnknownTyped struct{}

func (UnknownTyped) Datasource() string { return "nope" }
func (UnknownTyped) Fields() []Field {
	return []Field{{Name: "id", Type: "integer", Primary: true}, {Name: "amount", Type: "money"}}
}

type countingDefinition struct {
	mu    *sync.Mutex
	calls *int
}

func (countingDefinition) Datasource() string { return "counted" }
func (d countingDefinition) Fields() []Field {
	d.mu.Lock()
	*d.calls++
	d.mu.Unlock()
	return []Field{{Name: "id", Type: "integer", Primary: true}}
}

// --- Test Cases ---

func TestManager_Metadata(t *testing.T) {
	m := NewManager(types.NewRegistry(), nil)
	meta, err := m.Metadata(Post{})
	require.NoError(t, err)

	assert.Equal(t, "Post", meta.Name)
	assert.Equal(t, "test_posts", meta.Datasource)
	assert.Equal(t, []string{"id", "title", "body", "status", "price", "author_id", "date_created"}, meta.FieldNames())
	assert.Equal(t, "id", meta.PrimaryKey.Name)
	assert.Equal(t, "InnoDB", meta.Options["engine"])

	title, ok := meta.Field("title")
	require.True(t, ok)
	assert.Equal(t, 255, title.Length, "string fields default to length 255")
	assert.True(t, title.NotNull, "required implies not null")
	assert.False(t, title.IsNullable())

	price, _ := meta.Field("price")
	assert.Equal(t, 14, price.Precision)
	assert.Equal(t, 10, price.Scale)
	assert.True(t, price.IsNullable())

	body, _ := meta.Field("body")
	assert.Equal(t, 0, body.Length, "text has no default length")

	assert.Equal(t, map[string]any{"status": 0}, meta.Defaults())
	assert.Equal(t, "integer", meta.FieldType("status"))
	assert.Equal(t, "", meta.FieldType("missing"))
	assert.False(t, meta.HasField("missing"))
	assert.Len(t, meta.Defined, 7)
}

func TestManager_SelfRelationResolved(t *testing.T) {
	m := NewManager(nil, nil)
	meta, err := m.Metadata(Post{})
	require.NoError(t, err)

	parent, ok := meta.Relation("parent")
	require.True(t, ok)
	assert.Equal(t, Post{}, parent.Entity)
	assert.Equal(t, HasOne, parent.Kind)

	comments, ok := meta.Relation("comments")
	require.True(t, ok)
	assert.Equal(t, "HasMany", comments.Kind.String())
}

func TestManager_DerivedDatasourceAndConnection(t *testing.T) {
	m := NewManager(nil, nil)
	meta, err := m.Metadata(Comment{})
	require.NoError(t, err)
	assert.Equal(t, "comments", meta.Datasource)
	assert.Equal(t, "replica", meta.Connection)
	assert.Equal(t, "", meta.Defined[2].Type, "declared fields are kept as written")
	assert.Equal(t, "string", meta.Fields[2].Type)
}

func TestManager_Indexes(t *testing.T) {
	m := NewManager(nil, nil)

	meta, err := m.Metadata(Post{})
	require.NoError(t, err)
	require.Len(t, meta.Indexes, 2)
	assert.Equal(t, "author_date", meta.Indexes[0].Name)
	assert.Equal(t, []string{"author_id", "date_created"}, meta.Indexes[0].Columns())
	assert.Equal(t, "status", meta.Indexes[1].Name)

	meta, err = m.Metadata(Comment{})
	require.NoError(t, err)
	require.Len(t, meta.Indexes, 2)
	assert.Equal(t, UniqueIndex, meta.Indexes[0].Kind)
	assert.Equal(t, []string{"email", "name"}, meta.Indexes[0].Columns())
	assert.Equal(t, PlainIndex, meta.Indexes[1].Kind)
}

func TestManager_PrimaryKeyErrors(t *testing.T) {
	m := NewManager(nil, nil)

	_, err := m.PrimaryKeyField(NoPrimary{})
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "no primary key")

	_, err = m.PrimaryKeyField(TwoPrimaries{})
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "multiple primary key")

	pk, err := m.PrimaryKeyField(Post{})
	require.NoError(t, err)
	assert.Equal(t, "id", pk)
}

func TestManager_UnknownType(t *testing.T) {
	m := NewManager(nil, nil)
	_, err := m.Metadata(UnknownTyped{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnknownType))
}

func TestManager_CachesAndResets(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	def := countingDefinition{mu: &mu, calls: &calls}
	m := NewManager(nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Metadata(def)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	first, err := m.Metadata(def)
	require.NoError(t, err)
	second, err := m.Metadata(def)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	m.Reset(def)
	third, err := m.Metadata(def)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, calls)

	m.Reset()
	_, err = m.Metadata(def)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestLoadDefinitions(t *testing.T) {
	src := `
entities:
  - name: Event
    datasource: test_events
    options: {engine: MyISAM}
    fields:
      - {name: id, type: integer, primary: true, serial: true}
      - {name: title, required: true}
      - {name: type, options: [free, private, vip]}
  - name: Tag
    fields:
      - {name: id, type: integer, primary: true}
`
	defs, err := LoadDefinitions(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	m := NewManager(nil, nil)
	event, err := m.Metadata(defs[0])
	require.NoError(t, err)
	tag, err := m.Metadata(defs[1])
	require.NoError(t, err)

	assert.Equal(t, "Event", event.Name)
	assert.Equal(t, "test_events", event.Datasource)
	assert.Equal(t, "MyISAM", event.Options["engine"])
	typ, _ := event.Field("type")
	assert.Equal(t, []any{"free", "private", "vip"}, typ.Options)

	assert.Equal(t, "tags", tag.Datasource)
	assert.NotSame(t, event, tag, "definitions sharing a Go type are cached separately")
}

func TestLoadDefinitions_Errors(t *testing.T) {
	_, err := LoadDefinitions(strings.NewReader("entities:\n  - datasource: x\n"))
	assert.ErrorContains(t, err, "has no name")

	_, err = LoadDefinitions(strings.NewReader("entities:\n  - name: A\n  - name: A\n"))
	assert.ErrorContains(t, err, "declared twice")

	_, err = LoadDefinitions(strings.NewReader("entities:\n  - name: A\n    bogus: 1\n"))
	assert.Error(t, err)
}

func TestDefaultNamingStrategy(t *testing.T) {
	ns := DefaultNamingStrategy{}
	assert.Equal(t, "post_tags", ns.DatasourceName("PostTag"))
	assert.Equal(t, "categories", ns.DatasourceName("Category"))
	assert.Equal(t, "people", ns.DatasourceName("Person"))
}
