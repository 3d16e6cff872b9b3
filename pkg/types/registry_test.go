// pkg/types/registry_test.go
package types

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Registry ---

type upperHandler struct{ String }

func (upperHandler) Cast(v any) (any, error) { return "UP", nil }

func TestRegistry_BuiltinsRegistered(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{
		"string", "text", "int", "integer", "timestamp", "year", "month", "day",
		"float", "double", "decimal", "bool", "boolean", "datetime", "date",
		"serialized", "uuid", "json",
	} {
		_, err := r.Lookup(name)
		assert.NoError(t, err, "built-in %q should be registered", name)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("money")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownType))

	var ute *UnknownTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "money", ute.Name)

	_, err = r.Cast("money", 1)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistry_RegisterReplacesOnlyThatName(t *testing.T) {
	r := NewRegistry()
	r.Register("string", upperHandler{})

	v, err := r.Cast("string", "abc")
	require.NoError(t, err)
	assert.Equal(t, "UP", v)

	v, err = r.Cast("text", "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", v, "alias keeps its original handler")
}

func TestRegistry_RegisterPanics(t *testing.T) {
	r := NewRegistry()
	assert.PanicsWithValue(t, "types: Register called with empty type name", func() { r.Register("", String{}) })
	assert.PanicsWithValue(t, "types: Register handler is nil for type x", func() { r.Register("x", nil) })
}

type aliasHandler struct {
	String
	to string
}

func (h aliasHandler) StorageType() string { return h.to }

func TestRegistry_StorageType(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "text", r.StorageType("json"))
	assert.Equal(t, "uuid", r.StorageType("uuid"))
	assert.Equal(t, "string", r.StorageType("string"))
	assert.Equal(t, "nope", r.StorageType("nope"))

	r.Register("secret", aliasHandler{to: "json"})
	assert.Equal(t, "text", r.StorageType("secret"), "handlers chain to the final column type")

	r.Register("ping", aliasHandler{to: "pong"})
	r.Register("pong", aliasHandler{to: "ping"})
	assert.Equal(t, "ping", r.StorageType("ping"), "a cycle stops at the first repeated name")
}

func TestRegistry_NamesSorted(t *testing.T) {
	names := NewRegistry().Names()
	assert.IsNonDecreasing(t, names)
	assert.Contains(t, names, "uuid")
}

// --- Casting ---

func TestBoolean_Cast(t *testing.T) {
	h := Boolean{}
	truthy := []any{"a", 1, 100, 256, -12, 0.2, true}
	for _, v := range truthy {
		got, err := h.Cast(v)
		require.NoError(t, err)
		assert.Equal(t, true, got, "value %#v", v)
	}
	falsy := []any{false, nil, "", 0, 0.0, "0"}
	for _, v := range falsy {
		got, err := h.Cast(v)
		require.NoError(t, err)
		assert.Equal(t, false, got, "value %#v", v)
	}
}

func TestBoolean_Dump(t *testing.T) {
	h := Boolean{}
	v, err := h.Dump(true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	v, err = h.Dump("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestInteger_Cast(t *testing.T) {
	h := Integer{}
	cases := []struct {
		in   any
		want any
	}{
		{"100", int64(100)},
		{"0100", int64(100)},
		{100, int64(100)},
		{100.9, int64(100)},
		{"12.7", int64(12)},
		{[]byte("7"), int64(7)},
		{"", nil},
		{nil, nil},
		{false, nil},
	}
	for _, c := range cases {
		got, err := h.Cast(c.in)
		require.NoError(t, err, "input %#v", c.in)
		assert.Equal(t, c.want, got, "input %#v", c.in)
	}

	_, err := h.Cast("abc")
	assert.Error(t, err)
}

func TestFloat_Cast(t *testing.T) {
	h := Float{}
	got, err := h.Cast("100.12")
	require.NoError(t, err)
	assert.Equal(t, 100.12, got)

	got, err = h.Cast(3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	for _, v := range []any{nil, "", false} {
		got, err = h.Cast(v)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestString_Cast(t *testing.T) {
	h := String{}
	cases := []struct {
		in   any
		want any
	}{
		{false, ""},
		{true, "1"},
		{0.75, "0.75"},
		{42, "42"},
		{[]byte("raw"), "raw"},
		{nil, nil},
	}
	for _, c := range cases {
		got, err := h.Cast(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "input %#v", c.in)
	}
}

func TestDatetime_CastAndRoundTrip(t *testing.T) {
	h := Datetime{}
	instant := time.Date(2014, 3, 8, 14, 22, 5, 0, time.UTC)

	dumped, err := h.Dump(instant)
	require.NoError(t, err)
	assert.Equal(t, "2014-03-08 14:22:05", dumped)

	loaded, err := h.Load(dumped)
	require.NoError(t, err)
	assert.True(t, instant.Equal(loaded.(time.Time)))

	fromUnix, err := h.Cast(instant.Unix())
	require.NoError(t, err)
	assert.True(t, instant.Equal(fromUnix.(time.Time)))

	fromNumericString, err := h.Cast("1394288525")
	require.NoError(t, err)
	assert.True(t, instant.Equal(fromNumericString.(time.Time)))

	for _, v := range []any{nil, "", false} {
		got, err := h.Cast(v)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestSerialized_RoundTrip(t *testing.T) {
	h := Serialized{}
	in := map[string]any{"foo": "bar", "count": int64(3), "tags": []any{"a", "b"}}

	raw, err := h.Dump(in)
	require.NoError(t, err)
	require.IsType(t, []byte{}, raw)

	out, err := h.Load(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out, err = h.Load(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestUUID_RoundTrip(t *testing.T) {
	h := UUID{}
	id := uuid.New()

	raw, err := h.Dump(id)
	require.NoError(t, err)
	assert.Equal(t, id.String(), raw)

	loaded, err := h.Load(raw)
	require.NoError(t, err)
	assert.Equal(t, id, loaded)

	_, err = h.Cast("not-a-uuid")
	assert.Error(t, err)
}

func TestJSON_RoundTrip(t *testing.T) {
	h := JSON{}
	raw, err := h.Dump(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, raw)

	loaded, err := h.Load(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, loaded)
}

func TestRoundTripLaws(t *testing.T) {
	r := NewRegistry()
	cases := map[string]any{
		"string":  "hello",
		"integer": int64(42),
		"float":   1.5,
		"boolean": true,
	}
	for typ, v := range cases {
		dumped, err := r.Dump(typ, v)
		require.NoError(t, err)
		loaded, err := r.Load(typ, dumped)
		require.NoError(t, err)
		assert.Equal(t, v, loaded, "type %s", typ)
	}
}
