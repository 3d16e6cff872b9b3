// pkg/dialects/dialecttest/dialecttest.go

// Package dialecttest provides fixtures shared by the dialect test suites.
package dialecttest

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/vlucas/spot/pkg/schema"
	"github.com/vlucas/spot/pkg/types"
)

// PostsDefinition declares a table exercising every column and index
// feature rendered by the dialects except fulltext.
func PostsDefinition() *schema.StaticDefinition {
	return &schema.StaticDefinition{
		Name:   "Post",
		Source: "test_posts",
		FieldList: []schema.Field{
			{Name: "id", Type: "integer", Primary: true, Serial: true},
			{Name: "title", Type: "string", Required: true, Unique: true},
			{Name: "body", Type: "text", Required: true},
			{Name: "status", Type: "integer", Default: 0, Index: true},
			{Name: "price", Type: "decimal"},
			{Name: "is_public", Type: "boolean", Default: false},
			{Name: "author_id", Type: "integer", UniqueGroup: "author_slug"},
			{Name: "slug", Type: "string", Length: 100, UniqueGroup: "author_slug"},
			{Name: "date_created", Type: "datetime"},
		},
	}
}

// Metadata builds metadata for def with a fresh manager.
func Metadata(t *testing.T, def schema.Definition) *schema.Metadata {
	t.Helper()
	meta, err := schema.NewManager(types.NewRegistry(), nil).Metadata(def)
	require.NoError(t, err)
	return meta
}

// PostsMetadata is Metadata(t, PostsDefinition()).
func PostsMetadata(t *testing.T) *schema.Metadata {
	t.Helper()
	return Metadata(t, PostsDefinition())
}

// Render joins statements the way a migration script would print them.
func Render(stmts []string) []byte {
	if len(stmts) == 0 {
		return nil
	}
	return []byte(strings.Join(stmts, ";\n\n") + ";\n")
}

// AssertGolden compares the rendered statements with testdata/golden/<name>.golden.
func AssertGolden(t *testing.T, name string, stmts []string) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Render(stmts))
}
