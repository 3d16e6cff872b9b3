// pkg/spot/fixtures_test.go
package spot

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vlucas/spot/pkg/config"
	"github.com/vlucas/spot/pkg/schema"
)

// --- Definitions ---

type Post struct{}

func (Post) Datasource() string { return "test_posts" }
func (Post) Fields() []schema.Field {
	return []schema.Field{
		{Name: "id", Type: "integer", Primary: true, Serial: true},
		{Name: "title", Type: "string", Required: true},
		{Name: "body", Type: "text"},
		{Name: "status", Type: "integer", Default: 0},
		{Name: "author_id", Type: "integer"},
	}
}
func (Post) Relations() map[string]schema.Relation {
	return map[string]schema.Relation{
		"comments": {
			Kind:   schema.HasMany,
			Entity: Comment{},
			Where:  map[string]any{"post_id": ":entity.id"},
			Order:  []schema.OrderBy{{Field: "id", Direction: "ASC"}},
		},
		"author": {
			Kind:   schema.HasOne,
			Entity: Author{},
			Where:  map[string]any{"id": ":entity.author_id"},
		},
		"tags": {
			Kind:         schema.HasManyThrough,
			Entity:       Tag{},
			Through:      PostTag{},
			ThroughWhere: map[string]any{"post_id": ":entity.id"},
			Where:        map[string]any{"id": ":through.tag_id"},
			Order:        []schema.OrderBy{{Field: "name"}},
		},
	}
}

type Comment struct{}

func (Comment) Datasource() string { return "test_post_comments" }
func (Comment) Fields() []schema.Field {
	return []schema.Field{
		{Name: "id", Type: "integer", Primary: true, Serial: true},
		{Name: "post_id", Type: "integer", Index: true, Required: true},
		{Name: "name", Type: "string", Required: true},
		{Name: "body", Type: "text"},
	}
}

type Author struct{}

func (Author) Datasource() string { return "test_authors" }
func (Author) Fields() []schema.Field {
	return []schema.Field{
		{Name: "id", Type: "integer", Primary: true, Serial: true},
		{Name: "email", Type: "string", Required: true, Unique: true, Validation: []string{"email"}},
		{Name: "role", Type: "string", Default: "member", Options: []any{"member", "admin"}},
		{Name: "token", Type: "string"},
		{Name: "is_admin", Type: "boolean", Default: false},
	}
}

type Tag struct{}

func (Tag) Datasource() string { return "test_tags" }
func (Tag) Fields() []schema.Field {
	return []schema.Field{
		{Name: "id", Type: "integer", Primary: true, Serial: true},
		{Name: "name", Type: "string", Required: true},
	}
}

type PostTag struct{}

func (PostTag) Datasource() string { return "test_posttags" }
func (PostTag) Fields() []schema.Field {
	return []schema.Field{
		{Name: "id", Type: "integer", Primary: true, Serial: true},
		{Name: "tag_id", Type: "integer", Required: true},
		{Name: "post_id", Type: "integer", Required: true},
	}
}

// Tagging allows one row per tag.
type Tagging struct{}

func (Tagging) Datasource() string { return "test_taggings" }
func (Tagging) Fields() []schema.Field {
	return []schema.Field{
		{Name: "id", Type: "integer", Primary: true, Serial: true},
		{Name: "tag_id", Type: "integer", Required: true, Unique: true},
		{Name: "post_id", Type: "integer", Required: true},
		{Name: "random", Type: "string"},
	}
}

// Booking allows one booking per room and day.
type Booking struct{}

func (Booking) Datasource() string { return "test_bookings" }
func (Booking) Fields() []schema.Field {
	return []schema.Field{
		{Name: "id", Type: "integer", Primary: true, Serial: true},
		{Name: "room", Type: "integer", UniqueGroup: "room_day"},
		{Name: "day", Type: "string", UniqueGroup: "room_day"},
	}
}

var allDefinitions = []schema.Definition{Post{}, Comment{}, Author{}, Tag{}, PostTag{}, Tagging{}, Booking{}}

// --- Helpers ---

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// newMapper returns a mapper over a migrated in-memory SQLite database.
func newMapper(t *testing.T, opts ...Option) *Mapper {
	t.Helper()
	cfg := NewConfig(WithConfigLogger(discard))
	_, err := cfg.AddConnectionConfig(DefaultConnection, config.DatabaseConfig{
		Dialect: "sqlite",
		DSN:     "sqlite::memory:",
		Driver:  "modernc",
	}, true)
	require.NoError(t, err)
	t.Cleanup(func() { cfg.Close() })

	m := New(cfg, opts...)
	require.NoError(t, m.Migrate(context.Background(), allDefinitions...))
	return m
}

func count(t *testing.T, m *Mapper, def schema.Definition) int64 {
	t.Helper()
	q, err := m.Select(def)
	require.NoError(t, err)
	n, err := q.Count(context.Background())
	require.NoError(t, err)
	return n
}
