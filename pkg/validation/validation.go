// pkg/validation/validation.go
package validation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Validator checks entity data against per-field rules and returns the
// messages of every failed rule keyed by field.
type Validator interface {
	Validate(ctx context.Context, data map[string]any, rules map[string][]string) map[string][]string
}

// MessageFunc renders the message of a failed rule from its parameter.
type MessageFunc func(param string) string

var defaultMessages = map[string]MessageFunc{
	"required": func(string) string { return "Required" },
	"email":    func(string) string { return "Invalid email address" },
	"min":      func(p string) string { return "Must be longer than " + p },
	"max":      func(p string) string { return "Must be shorter than " + p },
	"len":      func(p string) string { return "Must be exactly " + p + " characters" },
	"gt":       func(p string) string { return "Must be greater than " + p },
	"gte":      func(p string) string { return "Must be at least " + p },
	"lt":       func(p string) string { return "Must be less than " + p },
	"lte":      func(p string) string { return "Must be at most " + p },
	"oneof":    func(p string) string { return "Must be one of: " + p },
	"url":      func(string) string { return "Invalid URL" },
	"numeric":  func(string) string { return "Must be numeric" },
	"alpha":    func(string) string { return "Must contain only letters" },
	"alphanum": func(string) string { return "Must contain only letters and numbers" },
}

// Default validates with go-playground/validator. Each rule is a validator
// tag expression such as "email" or "min=4,max=255". Rules other than
// "required" are skipped for blank values.
type Default struct {
	v *validator.Validate

	mu       sync.RWMutex
	messages map[string]MessageFunc
}

// New returns a Default validator with the built-in messages.
func New() *Default {
	return &Default{
		v:        validator.New(validator.WithRequiredStructEnabled()),
		messages: maps.Clone(defaultMessages),
	}
}

// RegisterRule adds a custom rule under tag with its message.
func (d *Default) RegisterRule(tag string, fn validator.FuncCtx, msg MessageFunc) error {
	if err := d.v.RegisterValidationCtx(tag, fn); err != nil {
		return fmt.Errorf("validation: registering rule '%s': %w", tag, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages[tag] = msg
	return nil
}

func (d *Default) Validate(ctx context.Context, data map[string]any, rules map[string][]string) map[string][]string {
	errs := make(map[string][]string)
	for _, field := range slices.Sorted(maps.Keys(rules)) {
		value := data[field]
		for _, rule := range rules[field] {
			if rule != "required" && isBlank(value) {
				continue
			}
			if rule == "required" && isBlank(value) {
				errs[field] = appendUnique(errs[field], d.message("required", ""))
				continue
			}
			for _, msg := range d.check(ctx, value, rule) {
				errs[field] = appendUnique(errs[field], msg)
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (d *Default) check(ctx context.Context, value any, rule string) (msgs []string) {
	// The validator panics on unknown tags.
	defer func() {
		if r := recover(); r != nil {
			msgs = []string{fmt.Sprintf("Invalid rule '%s': %v", rule, r)}
		}
	}()
	err := d.v.VarCtx(ctx, value, rule)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{fmt.Sprintf("Invalid rule '%s': %v", rule, err)}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, d.message(fe.Tag(), fe.Param()))
	}
	return out
}

func (d *Default) message(tag, param string) string {
	d.mu.RLock()
	fn, ok := d.messages[tag]
	d.mu.RUnlock()
	if ok {
		return fn(param)
	}
	return fmt.Sprintf("Failed '%s' validation", tag)
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}

func appendUnique(list []string, msg string) []string {
	if slices.Contains(list, msg) {
		return list
	}
	return append(list, msg)
}
