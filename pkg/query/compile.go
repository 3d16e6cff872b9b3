// pkg/query/compile.go
package query

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vlucas/spot/pkg/dialects/common"
	"github.com/vlucas/spot/pkg/types"
)

// Binder is the part of a dialect the compiler needs. common.Dialect satisfies it.
type Binder interface {
	Quote(identifier string) string
	BindVar(i int) string
	Literal(v any) string
	Fulltext(columns []string, placeholder string) (string, error)
}

// Bind is one named parameter produced by the compiler, in placeholder order.
type Bind struct {
	Name  string
	Value any
}

// Values returns the bound values in placeholder order.
func Values(binds []Bind) []any {
	out := make([]any, len(binds))
	for i, b := range binds {
		out[i] = b.Value
	}
	return out
}

// Compiler turns condition groups into a parameterised SQL fragment.
// One compiler is used per statement so that placeholder positions and
// bind names keep increasing across WHERE and HAVING.
type Compiler struct {
	binder  Binder
	pos     int
	counter int
}

// NewCompiler returns a compiler whose first placeholder is startPos+1.
func NewCompiler(b Binder, startPos int) *Compiler {
	return &Compiler{binder: b, pos: startPos}
}

// Position returns the number of placeholders used so far, including startPos.
func (c *Compiler) Position() int { return c.pos }

// Compile is NewCompiler(b, 0).Compile(groups).
func Compile(groups []Group, b Binder) (string, []Bind, error) {
	return NewCompiler(b, 0).Compile(groups)
}

// Compile renders groups as "(a AND b) OR (c)". Each group's conditions are
// joined by its Join; a group is joined to the previous one by its SetJoin.
func (c *Compiler) Compile(groups []Group) (string, []Bind, error) {
	var (
		sql   strings.Builder
		binds []Bind
	)
	for _, g := range groups {
		if len(g.Conditions) == 0 {
			continue
		}
		keys := make([]string, 0, len(g.Conditions))
		for k := range g.Conditions {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			frag, bind, err := c.condition(key, g.Conditions[key])
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, frag)
			if bind != nil {
				binds = append(binds, *bind)
			}
		}

		if sql.Len() > 0 {
			sql.WriteString(" " + joinOr(g.SetJoin) + " ")
		}
		sql.WriteString("(" + strings.Join(parts, " "+joinOr(g.Join)+" ") + ")")
	}
	return sql.String(), binds, nil
}

func joinOr(j string) string {
	if j == "" {
		return AND
	}
	return j
}

// --- Conditions ---

// operators maps accepted tokens to their canonical form.
var operators = map[string]string{
	"=": "=", "==": "=", ":eq": "=",
	"<": "<", ":lt": "<",
	"<=": "<=", ":lte": "<=",
	">": ">", ":gt": ">",
	">=": ">=", ":gte": ">=",
	"!=": "!=", "<>": "!=", ":ne": "!=", ":not": "!=",
	":in":       "IN",
	":like":     "LIKE",
	":fulltext": "FULLTEXT",
	":all":      "ALL",
}

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	operatorRe   = regexp.MustCompile(`^(:\w+|[<>=!~]+)$`)
	paramRe      = regexp.MustCompile(`\W+`)
)

// ParseKey splits a condition key into column and canonical operator.
// "status" -> ("status", "="), "status >" -> ("status", ">"),
// "DATE(created) :gte" -> ("DATE(created)", ">=").
func ParseKey(key string) (column, op string, err error) {
	key = strings.TrimSpace(key)
	i := strings.LastIndexByte(key, ' ')
	if i < 0 {
		return key, "=", nil
	}
	token := key[i+1:]
	if canon, ok := operators[strings.ToLower(token)]; ok {
		return strings.TrimSpace(key[:i]), canon, nil
	}
	if operatorRe.MatchString(token) {
		return "", "", fmt.Errorf("query: unsupported operator '%s' in condition '%s'", token, key)
	}
	return key, "=", nil
}

// ParamName is the bind name of the n-th condition on column.
func ParamName(column string, n int) string {
	return strings.Trim(paramRe.ReplaceAllString(column, "_"), "_") + strconv.Itoa(n)
}

// QuoteColumn quotes plain and table-qualified column names; expressions
// such as "COUNT(id)" are returned unchanged.
func QuoteColumn(b Binder, col string) string {
	if identifierRe.MatchString(col) {
		return b.Quote(col)
	}
	return col
}

func (c *Compiler) column(col string) string { return QuoteColumn(c.binder, col) }

func (c *Compiler) placeholder() string {
	c.pos++
	return c.binder.BindVar(c.pos)
}

func (c *Compiler) condition(key string, value any) (string, *Bind, error) {
	col, op, err := ParseKey(key)
	if err != nil {
		return "", nil, err
	}
	n := c.counter
	c.counter++

	if op == "ALL" {
		return "", nil, &common.NotImplementedError{Feature: "operator ':all'"}
	}

	if value == nil {
		switch op {
		case "=", "IN":
			return c.column(col) + " IS NULL", nil, nil
		case "!=":
			return c.column(col) + " IS NOT NULL", nil, nil
		}
		return "", nil, fmt.Errorf("query: condition '%s' cannot compare with NULL", key)
	}

	if list, ok := listValue(value); ok {
		negate := op == "!="
		switch op {
		case "=", "!=", "IN":
		default:
			return "", nil, fmt.Errorf("query: condition '%s' does not accept a list", key)
		}
		if len(list) == 0 {
			if negate {
				return "1=1", nil, nil
			}
			return "1=0", nil, nil
		}
		lits := make([]string, len(list))
		for i, v := range list {
			lits[i] = c.binder.Literal(bindValue(v))
		}
		kw := "IN"
		if negate {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", c.column(col), kw, strings.Join(lits, ", ")), nil, nil
	}

	bind := &Bind{Name: ParamName(col, n), Value: bindValue(value)}
	switch op {
	case "FULLTEXT":
		cols := strings.Split(col, ",")
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		frag, err := c.binder.Fulltext(cols, c.placeholder())
		if err != nil {
			return "", nil, err
		}
		return frag, bind, nil
	case "IN":
		return fmt.Sprintf("%s IN (%s)", c.column(col), c.placeholder()), bind, nil
	}
	return fmt.Sprintf("%s %s %s", c.column(col), op, c.placeholder()), bind, nil
}

// listValue reports whether v is a slice or array used for membership.
// Byte slices and byte arrays (e.g. uuid.UUID) are scalar values.
func listValue(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}

// bindValue converts values the drivers would otherwise format
// inconsistently; instants are bound in the storage format of the
// datetime type.
func bindValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(types.DatetimeFormat)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(types.DatetimeFormat)
	case fmt.Stringer:
		return x.String()
	}
	return v
}
