// pkg/dialects/common/ddl.go
package common

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/vlucas/spot/pkg/schema"
)

const datetimeLayout = "2006-01-02 15:04:05"

// FormatLiteral renders v as SQL text, delegating string quoting to quote.
func FormatLiteral(v any, quote func(string) string) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return quote(x)
	case []byte:
		return quote(string(x))
	case time.Time:
		return quote(x.UTC().Format(datetimeLayout))
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "NULL"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return quote(x.String())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	}
	return quote(cast.ToString(v))
}

// QuoteString wraps s in single quotes, doubling embedded quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BaseType returns the lower-case type name before any length or modifier,
// e.g. "VARCHAR(255)" -> "varchar", "INT UNSIGNED" -> "int".
func BaseType(sqlType string) string {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexAny(t, "( "); i >= 0 {
		t = t[:i]
	}
	return t
}

// DefaultString normalises a field default for comparison with a column default.
func DefaultString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case bool:
		if x {
			return "1", true
		}
		return "0", true
	case time.Time:
		return x.UTC().Format(datetimeLayout), true
	}
	return cast.ToString(v), true
}

// NormalizeDefault strips the wrapping parentheses, casts and quotes that
// engines add when reporting a column default: "((0))" -> "0",
// "'draft'::character varying" -> "draft".
func NormalizeDefault(raw string) string {
	s := strings.TrimSpace(raw)
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "N'") {
		s = s[1:]
	}
	if strings.HasPrefix(s, "'") {
		if end := strings.LastIndex(s, "'"); end > 0 {
			return strings.ReplaceAll(s[1:end], "''", "'")
		}
	}
	if i := strings.Index(s, "::"); i >= 0 {
		s = s[:i]
	}
	return s
}

// ColumnSpec holds the rendered parts of one column definition.
type ColumnSpec struct {
	Name     string
	Type     string
	Unsigned bool
	NotNull  bool
	Default  string // Rendered literal, "" for none.
	Extra    string // e.g. "AUTO_INCREMENT", "IDENTITY(1,1)".
}

// String renders `name TYPE [UNSIGNED] [NOT NULL] [DEFAULT x] [extra]`.
func (c ColumnSpec) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString(" ")
	b.WriteString(c.Type)
	if c.Unsigned {
		b.WriteString(" UNSIGNED")
	}
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	if c.Extra != "" {
		b.WriteString(" ")
		b.WriteString(c.Extra)
	}
	return b.String()
}

// QuoteColumns quotes and comma-joins columns.
func QuoteColumns(d Dialect, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

// ConstraintName builds the per-table key names used by engines whose index
// names share one namespace: "<table>_<name>_key" or "<table>_<name>_idx".
func ConstraintName(table string, idx *schema.Index) string {
	suffix := "idx"
	if idx.Kind == schema.UniqueIndex {
		suffix = "key"
	}
	return fmt.Sprintf("%s_%s_%s", table, idx.Name, suffix)
}

// ColumnDiff lists fields to add and fields whose column must change.
type ColumnDiff struct {
	Added   []*schema.Field
	Changed []*schema.Field
}

// Empty reports whether no column needs to change.
func (d ColumnDiff) Empty() bool { return len(d.Added) == 0 && len(d.Changed) == 0 }

// DiffColumns compares meta against existing columns. sameType decides
// whether a column already has the field's type; defaults are compared
// after normalisation, except for serial fields.
func DiffColumns(meta *schema.Metadata, existing []ColumnInfo, sameType func(*schema.Field, ColumnInfo) (bool, error)) (ColumnDiff, error) {
	byName := make(map[string]ColumnInfo, len(existing))
	for _, c := range existing {
		byName[strings.ToLower(c.Name)] = c
	}
	var diff ColumnDiff
	for _, f := range meta.Fields {
		col, ok := byName[strings.ToLower(f.Name)]
		if !ok {
			diff.Added = append(diff.Added, f)
			continue
		}
		same, err := sameType(f, col)
		if err != nil {
			return diff, err
		}
		if !same || (!f.Serial && !sameDefault(f.Default, col.Default)) {
			diff.Changed = append(diff.Changed, f)
		}
	}
	return diff, nil
}

func sameDefault(fieldDefault any, colDefault *string) bool {
	want, has := DefaultString(fieldDefault)
	if colDefault == nil || strings.EqualFold(*colDefault, "NULL") {
		return !has
	}
	return has && want == *colDefault
}

// IndexesTouching returns the indexes containing at least one of fields.
func IndexesTouching(meta *schema.Metadata, fields []*schema.Field) []*schema.Index {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f.Name] = true
	}
	var out []*schema.Index
	for _, idx := range meta.Indexes {
		for _, f := range idx.Fields {
			if set[f.Name] {
				out = append(out, idx)
				break
			}
		}
	}
	return out
}

// ParseInfoSchemaColumn reads a row with name, type, dflt and nullable keys,
// as selected by the information_schema introspection queries.
func ParseInfoSchemaColumn(row map[string]any) (ColumnInfo, error) {
	name, ok := row["name"]
	if !ok || name == nil {
		return ColumnInfo{}, fmt.Errorf("introspection row has no column name")
	}
	info := ColumnInfo{
		Name:     cast.ToString(name),
		Type:     strings.ToLower(cast.ToString(row["type"])),
		Nullable: strings.EqualFold(cast.ToString(row["nullable"]), "YES"),
	}
	if d := row["dflt"]; d != nil {
		s := NormalizeDefault(cast.ToString(d))
		info.Default = &s
	}
	return info, nil
}
