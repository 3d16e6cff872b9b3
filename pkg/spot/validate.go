// pkg/spot/validate.go
package spot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cast"

	"github.com/vlucas/spot/pkg/entity"
	"github.com/vlucas/spot/pkg/query"
)

// Validate checks e against its field declarations and stores the messages
// on the entity, replacing earlier ones. It returns *ValidationError when
// any field fails, or the error of a uniqueness lookup.
//
// Checks: required fields, unique fields and unique groups (new entities
// only), allowed options, then the fields' validation rules.
func (m *Mapper) Validate(ctx context.Context, e *entity.Entity) error {
	meta := e.Meta()
	e.SetErrors(nil)

	rules := make(map[string][]string)
	for _, f := range meta.Fields {
		if f.Required {
			rules[f.Name] = append(rules[f.Name], "required")
		}
		rules[f.Name] = append(rules[f.Name], f.Validation...)
		if len(rules[f.Name]) == 0 {
			delete(rules, f.Name)
		}
	}

	if e.IsNew() {
		if err := m.validateUnique(ctx, e); err != nil {
			return err
		}
	}

	for _, f := range meta.Fields {
		if len(f.Options) == 0 {
			continue
		}
		v := e.Get(f.Name)
		if v == nil || v == "" {
			continue
		}
		if !slices.ContainsFunc(f.Options, func(o any) bool { return cast.ToString(o) == cast.ToString(v) }) {
			e.Error(f.Name, "Must be one of: "+joinValues(f.Options, ", "))
		}
	}

	if len(rules) > 0 {
		for field, msgs := range m.validator.Validate(ctx, e.Data(), rules) {
			for _, msg := range msgs {
				if !slices.Contains(e.FieldErrors(field), msg) {
					e.Error(field, msg)
				}
			}
		}
	}

	if e.HasErrors() {
		return &ValidationError{Entity: meta.Name, Errors: e.Errors()}
	}
	return nil
}

// validateUnique reports taken values of unique fields. Fields sharing a
// unique group are checked together and reported under the group name.
// A NULL member skips the check since NULLs never collide.
func (m *Mapper) validateUnique(ctx context.Context, e *entity.Entity) error {
	meta := e.Meta()
	var keys []string
	members := make(map[string][]string)
	for _, f := range meta.Fields {
		key := f.UniqueGroup
		if key == "" {
			if !f.Unique || f.Primary {
				continue
			}
			key = f.Name
		}
		if _, seen := members[key]; !seen {
			keys = append(keys, key)
		}
		members[key] = append(members[key], f.Name)
	}

	def := meta.Definition()
	for _, key := range keys {
		conds := make(query.Conditions, len(members[key]))
		values := make([]any, 0, len(members[key]))
		for _, field := range members[key] {
			v := e.Get(field)
			if v == nil {
				conds = nil
				break
			}
			conds[field] = v
			values = append(values, v)
		}
		if conds == nil {
			continue
		}
		_, err := m.First(ctx, def, conds)
		switch {
		case errors.Is(err, query.ErrNotFound):
			continue
		case err != nil:
			return fmt.Errorf("spot: checking unique %s of %s: %w", key, meta.Name, err)
		}
		e.Error(key, fmt.Sprintf("%s '%s' is already taken.", label(key), joinValues(values, "-")))
	}
	return nil
}

// label turns a field name into words: "user_name" -> "User Name".
func label(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func joinValues(values []any, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = cast.ToString(v)
	}
	return strings.Join(parts, sep)
}
