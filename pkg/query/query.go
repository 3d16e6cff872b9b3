// pkg/query/query.go
package query

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vlucas/spot/pkg/entity"
	"github.com/vlucas/spot/pkg/schema"
)

// ErrNotFound is returned by First when no row matches.
var ErrNotFound = errors.New("query: no matching entity found")

// Join keywords.
const (
	AND = "AND"
	OR  = "OR"
)

// Sort directions.
const (
	ASC  = "ASC"
	DESC = "DESC"
)

// Conditions maps a condition key ("column", "column op") to its value.
type Conditions map[string]any

// Group is one set of conditions. Join separates the conditions inside the
// group, SetJoin separates the group from the previous one.
type Group struct {
	Conditions Conditions `msgpack:"conditions"`
	Join       string     `msgpack:"join"`
	SetJoin    string     `msgpack:"setJoin"`
}

// State holds the resettable parts of a query.
type State struct {
	Where  []Group          `msgpack:"where"`
	Order  []schema.OrderBy `msgpack:"order"`
	Group  []string         `msgpack:"group"`
	Having []Group          `msgpack:"having"`
	Limit  int              `msgpack:"limit"`
	Offset int              `msgpack:"offset"`
	With   []string         `msgpack:"with"`
}

func (s State) clone() State {
	out := State{
		Order:  slices.Clone(s.Order),
		Group:  slices.Clone(s.Group),
		Limit:  s.Limit,
		Offset: s.Offset,
		With:   slices.Clone(s.With),
	}
	out.Where = cloneGroups(s.Where)
	out.Having = cloneGroups(s.Having)
	return out
}

func cloneGroups(groups []Group) []Group {
	if groups == nil {
		return nil
	}
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = Group{Conditions: maps.Clone(g.Conditions), Join: g.Join, SetJoin: g.SetJoin}
	}
	return out
}

// Executor runs queries. The mapper provides one backed by an adapter.
type Executor interface {
	Read(ctx context.Context, q *Query) (*entity.Collection, error)
	Count(ctx context.Context, q *Query) (int64, error)
}

// Query is a chainable description of a SELECT against one entity.
// It is not safe for concurrent use.
type Query struct {
	exec       Executor
	meta       *schema.Metadata
	datasource string
	fields     []string

	state    State
	snapshot State
	err      error
	snapErr  error
	counts   map[string]int64
}

// New returns an empty query for meta's entity.
func New(exec Executor, meta *schema.Metadata) *Query {
	return &Query{
		exec:       exec,
		meta:       meta,
		datasource: meta.Datasource,
		counts:     make(map[string]int64),
	}
}

// --- Accessors ---

func (q *Query) Meta() *schema.Metadata { return q.meta }
func (q *Query) EntityName() string     { return q.meta.Name }
func (q *Query) Datasource() string     { return q.datasource }

// Fields returns the projection; empty means all columns.
func (q *Query) Fields() []string { return slices.Clone(q.fields) }

// State returns a copy of the resettable state.
func (q *Query) State() State { return q.state.clone() }

// Err returns the first error recorded while building the query.
func (q *Query) Err() error { return q.err }

func (q *Query) fail(format string, args ...any) {
	if q.err == nil {
		q.err = fmt.Errorf("query: "+format, args...)
	}
}

// --- Builder ---

// Select sets the projection. No fields or "*" selects all columns.
func (q *Query) Select(fields ...string) *Query {
	if len(fields) == 1 && fields[0] == "*" {
		fields = nil
	}
	q.fields = slices.Clone(fields)
	return q
}

// From overrides the datasource.
func (q *Query) From(datasource string) *Query {
	if datasource != "" {
		q.datasource = datasource
	}
	return q
}

// Where appends an AND-joined group. Empty conditions are ignored.
func (q *Query) Where(conds Conditions) *Query {
	return q.WhereGroup(conds, AND, AND)
}

// OrWhere appends a group joined to the previous ones with OR.
// join optionally sets the keyword between the group's own conditions.
func (q *Query) OrWhere(conds Conditions, join ...string) *Query {
	return q.WhereGroup(conds, firstOr(join, AND), OR)
}

// AndWhere appends a group joined to the previous ones with AND.
func (q *Query) AndWhere(conds Conditions, join ...string) *Query {
	return q.WhereGroup(conds, firstOr(join, AND), AND)
}

// WhereGroup appends a group with explicit join keywords.
func (q *Query) WhereGroup(conds Conditions, join, setJoin string) *Query {
	if len(conds) == 0 {
		return q
	}
	g, ok := q.group(conds, join, setJoin)
	if ok {
		q.state.Where = append(q.state.Where, g)
	}
	return q
}

func (q *Query) group(conds Conditions, join, setJoin string) (Group, bool) {
	join, setJoin = strings.ToUpper(join), strings.ToUpper(setJoin)
	for _, j := range []string{join, setJoin} {
		if j != AND && j != OR {
			q.fail("invalid join keyword '%s'", j)
			return Group{}, false
		}
	}
	return Group{Conditions: maps.Clone(conds), Join: join, SetJoin: setJoin}, true
}

func firstOr(vals []string, def string) string {
	if len(vals) > 0 && vals[0] != "" {
		return vals[0]
	}
	return def
}

// Search matches term anywhere in any of fields.
func (q *Query) Search(fields []string, term string) *Query {
	conds := make(Conditions, len(fields))
	for _, f := range fields {
		conds[f+" :like"] = "%" + term + "%"
	}
	return q.WhereGroup(conds, OR, AND)
}

// SearchFulltext matches term with the engine's full-text search over fields.
// Only MySQL supports it; other dialects fail when the query runs.
func (q *Query) SearchFulltext(fields []string, term string) *Query {
	if len(fields) == 0 {
		return q
	}
	return q.Where(Conditions{strings.Join(fields, ",") + " :fulltext": term})
}

// Order sorts by field, replacing any earlier direction for it. dir defaults to ASC.
func (q *Query) Order(field string, dir ...string) *Query {
	d := strings.ToUpper(firstOr(dir, ASC))
	if d != ASC && d != DESC {
		q.fail("invalid sort direction '%s' for '%s'", d, field)
		return q
	}
	for i, o := range q.state.Order {
		if o.Field == field {
			q.state.Order[i].Direction = d
			return q
		}
	}
	q.state.Order = append(q.state.Order, schema.OrderBy{Field: field, Direction: d})
	return q
}

// Group adds GROUP BY fields.
func (q *Query) Group(fields ...string) *Query {
	q.state.Group = append(q.state.Group, fields...)
	return q
}

// Having appends an AND-joined HAVING group.
func (q *Query) Having(conds Conditions) *Query {
	if len(conds) == 0 {
		return q
	}
	if g, ok := q.group(conds, AND, AND); ok {
		q.state.Having = append(q.state.Having, g)
	}
	return q
}

// Limit caps the number of rows; an optional offset replaces the current one.
func (q *Query) Limit(n int, offset ...int) *Query {
	q.state.Limit = max(n, 0)
	if len(offset) > 0 {
		q.state.Offset = max(offset[0], 0)
	}
	return q
}

// Offset skips n rows.
func (q *Query) Offset(n int) *Query {
	q.state.Offset = max(n, 0)
	return q
}

// With eager-loads the named relations.
func (q *Query) With(names ...string) *Query {
	for _, name := range names {
		if _, ok := q.meta.Relation(name); !ok {
			q.fail("entity %s has no relation '%s'", q.meta.Name, name)
			continue
		}
		if !slices.Contains(q.state.With, name) {
			q.state.With = append(q.state.With, name)
		}
	}
	return q
}

// WithMap adds relations mapped to true and removes those mapped to false.
func (q *Query) WithMap(relations map[string]bool) *Query {
	names := slices.Sorted(maps.Keys(relations))
	for _, name := range names {
		if relations[name] {
			q.With(name)
			continue
		}
		q.state.With = slices.DeleteFunc(q.state.With, func(w string) bool { return w == name })
	}
	return q
}

// WithNone clears all eager-loaded relations.
func (q *Query) WithNone() *Query {
	q.state.With = nil
	return q
}

// --- Snapshot / Reset ---

// Snapshot records the current state, and any build error, as the target
// of Reset.
func (q *Query) Snapshot() *Query {
	q.snapshot = q.state.clone()
	q.snapErr = q.err
	return q
}

// Reset restores the last snapshot, or the empty state if none was taken.
// Build errors recorded after the snapshot are discarded.
func (q *Query) Reset() *Query {
	q.state = q.snapshot.clone()
	q.err = q.snapErr
	return q
}

// HardReset clears the state and any build error regardless of any snapshot.
func (q *Query) HardReset() *Query {
	q.state = State{}
	q.err = nil
	return q
}

// --- Execution ---

// Execute runs the query.
func (q *Query) Execute(ctx context.Context) (*entity.Collection, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.exec.Read(ctx, q)
}

// First limits the query to one row and returns it, or ErrNotFound.
func (q *Query) First(ctx context.Context) (*entity.Entity, error) {
	col, err := q.Limit(1).Execute(ctx)
	if err != nil {
		return nil, err
	}
	if e := col.First(); e != nil {
		return e, nil
	}
	return nil, ErrNotFound
}

// All executes the query, yields its entities and then resets the query to
// its last snapshot. An execution error is yielded once with a nil entity.
func (q *Query) All(ctx context.Context) iter.Seq2[*entity.Entity, error] {
	return func(yield func(*entity.Entity, error) bool) {
		defer q.Reset()
		col, err := q.Execute(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, e := range col.Entities() {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Count returns the number of matching rows, ignoring limit and offset.
// Results are memoised per state; any change to the state issues a new count.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	key, keyErr := q.stateKey()
	if keyErr == nil {
		if n, ok := q.counts[key]; ok {
			return n, nil
		}
	}
	n, err := q.exec.Count(ctx, q)
	if err != nil {
		return 0, err
	}
	if keyErr == nil {
		q.counts[key] = n
	}
	return n, nil
}

func (q *Query) stateKey() (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(struct {
		Datasource string   `msgpack:"datasource"`
		Fields     []string `msgpack:"fields"`
		State      State    `msgpack:"state"`
	}{q.datasource, q.fields, q.state}); err != nil {
		return "", err
	}
	sum := sha1.Sum(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// Params returns the bind values of the WHERE and HAVING conditions keyed
// by parameter name. Null and list values are not bound and are omitted.
func (q *Query) Params() (map[string]any, error) {
	c := NewCompiler(plainBinder{}, 0)
	params := make(map[string]any)
	for _, groups := range [][]Group{q.state.Where, q.state.Having} {
		_, binds, err := c.Compile(groups)
		if err != nil {
			return nil, err
		}
		for _, b := range binds {
			params[b.Name] = b.Value
		}
	}
	return params, nil
}

// plainBinder renders SQL without dialect quoting; only bind names matter to Params.
type plainBinder struct{}

func (plainBinder) Quote(id string) string { return id }
func (plainBinder) BindVar(int) string     { return "?" }
func (plainBinder) Literal(v any) string   { return fmt.Sprint(v) }
func (plainBinder) Fulltext(cols []string, ph string) (string, error) {
	return "MATCH(" + strings.Join(cols, ", ") + ") AGAINST(" + ph + ")", nil
}
