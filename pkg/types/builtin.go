// pkg/types/builtin.go
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/vmihailenco/msgpack/v5"
)

// DatetimeFormat is the storage layout used when dumping datetime values.
const DatetimeFormat = "2006-01-02 15:04:05"

// StorageTyper is implemented by handlers whose column type should be
// derived from another registered type (e.g. a custom JSON type stored as "text").
type StorageTyper interface {
	StorageType() string
}

// isBlank reports the values PHP-style casts treat as "no value".
func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	case bool:
		return !x
	}
	return false
}

func stringish(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}

// --- String ---

// String casts to string, preserving nil.
type String struct{}

func (String) Cast(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if x {
			return "1", nil
		}
		return "", nil
	case time.Time:
		return x.Format(DatetimeFormat), nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil, fmt.Errorf("types: cannot cast %T to string: %w", v, err)
	}
	return s, nil
}

func (h String) Load(raw any) (any, error) { return h.Cast(raw) }
func (h String) Dump(v any) (any, error)   { return h.Cast(v) }

// --- Integer ---

// Integer casts to int64. Blank input (nil, "", false) becomes nil.
type Integer struct{}

func (Integer) Cast(v any) (any, error) {
	if isBlank(v) {
		return nil, nil
	}
	if s, ok := stringish(v); ok {
		s = strings.TrimSpace(s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("types: cannot cast %q to integer: %w", s, err)
		}
		return int64(math.Trunc(f)), nil
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return nil, fmt.Errorf("types: cannot cast %T to integer: %w", v, err)
	}
	return i, nil
}

func (h Integer) Load(raw any) (any, error) { return h.Cast(raw) }
func (h Integer) Dump(v any) (any, error)   { return h.Cast(v) }

// --- Float ---

// Float casts to float64. Blank input becomes nil.
type Float struct{}

func (Float) Cast(v any) (any, error) {
	if isBlank(v) {
		return nil, nil
	}
	if s, ok := stringish(v); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, fmt.Errorf("types: cannot cast %T to float: %w", v, err)
	}
	return f, nil
}

func (h Float) Load(raw any) (any, error) { return h.Cast(raw) }
func (h Float) Dump(v any) (any, error)   { return h.Cast(v) }

// --- Boolean ---

// Boolean applies a truth test: nil, false, "", "0" and numeric zero are false.
type Boolean struct{}

func (Boolean) Cast(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		return x != "" && x != "0", nil
	case []byte:
		return len(x) > 0 && string(x) != "0", nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, nil
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0, nil
	}
	return true, nil
}

func (h Boolean) Load(raw any) (any, error) { return h.Cast(raw) }

// Dump stores booleans as 0/1.
func (h Boolean) Dump(v any) (any, error) {
	b, _ := h.Cast(v)
	if b.(bool) {
		return int64(1), nil
	}
	return int64(0), nil
}

// --- Datetime ---

// Datetime accepts time.Time, ISO-like strings or unix timestamps. Falsy input becomes nil.
type Datetime struct{}

func (Datetime) Cast(v any) (any, error) {
	if isBlank(v) {
		return nil, nil
	}
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return *x, nil
	}
	if s, ok := stringish(v); ok {
		s = strings.TrimSpace(s)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0).UTC(), nil
		}
		t, err := cast.StringToDateInDefaultLocation(s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("types: cannot cast %q to datetime: %w", s, err)
		}
		return t, nil
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return nil, fmt.Errorf("types: cannot cast %T to datetime: %w", v, err)
	}
	return t.UTC(), nil
}

func (h Datetime) Load(raw any) (any, error) { return h.Cast(raw) }

// Dump formats the instant in UTC using DatetimeFormat.
func (h Datetime) Dump(v any) (any, error) {
	c, err := h.Cast(v)
	if err != nil || c == nil {
		return nil, err
	}
	return c.(time.Time).UTC().Format(DatetimeFormat), nil
}

// --- Serialized ---

// Serialized round-trips arbitrary values through msgpack.
type Serialized struct{}

func (Serialized) Cast(v any) (any, error) { return v, nil }

func (Serialized) Load(raw any) (any, error) {
	var b []byte
	switch x := raw.(type) {
	case nil:
		return nil, nil
	case []byte:
		b = x
	case string:
		b = []byte(x)
	default:
		return nil, fmt.Errorf("types: cannot load serialized value from %T", raw)
	}
	if len(b) == 0 {
		return nil, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("types: decoding serialized value: %w", err)
	}
	return out, nil
}

func (Serialized) Dump(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("types: encoding serialized value: %w", err)
	}
	return buf.Bytes(), nil
}

// --- UUID ---

// UUID stores identifiers in canonical string form.
type UUID struct{}

func (UUID) Cast(v any) (any, error) {
	if isBlank(v) {
		return nil, nil
	}
	switch x := v.(type) {
	case uuid.UUID:
		return x, nil
	case string:
		id, err := uuid.Parse(x)
		if err != nil {
			return nil, fmt.Errorf("types: invalid uuid %q: %w", x, err)
		}
		return id, nil
	case []byte:
		var (
			id  uuid.UUID
			err error
		)
		if len(x) == 16 {
			id, err = uuid.FromBytes(x)
		} else {
			id, err = uuid.ParseBytes(x)
		}
		if err != nil {
			return nil, fmt.Errorf("types: invalid uuid bytes: %w", err)
		}
		return id, nil
	}
	return nil, fmt.Errorf("types: cannot cast %T to uuid", v)
}

func (h UUID) Load(raw any) (any, error) { return h.Cast(raw) }

func (h UUID) Dump(v any) (any, error) {
	c, err := h.Cast(v)
	if err != nil || c == nil {
		return nil, err
	}
	return c.(uuid.UUID).String(), nil
}

func (UUID) StorageType() string { return "uuid" }

// --- JSON ---

// JSON stores values as JSON documents.
type JSON struct{}

func (JSON) Cast(v any) (any, error) { return v, nil }

func (JSON) Load(raw any) (any, error) {
	s, ok := stringish(raw)
	if !ok {
		return raw, nil
	}
	if s == "" {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("types: decoding json value: %w", err)
	}
	return out, nil
}

func (JSON) Dump(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("types: encoding json value: %w", err)
	}
	return string(b), nil
}

func (JSON) StorageType() string { return "text" }
