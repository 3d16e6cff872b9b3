// pkg/hooks/hooks.go
package hooks

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vlucas/spot/pkg/entity"
)

// Hook names. Instance hooks receive Event.Entity; the With hooks receive
// Event.Collection.
const (
	BeforeSave   = "beforeSave"
	AfterSave    = "afterSave"
	BeforeInsert = "beforeInsert"
	AfterInsert  = "afterInsert"
	BeforeUpdate = "beforeUpdate"
	AfterUpdate  = "afterUpdate"
	BeforeDelete = "beforeDelete"
	AfterDelete  = "afterDelete"
	BeforeWith   = "beforeWith"
	LoadWith     = "loadWith"
	AfterWith    = "afterWith"
)

// Names lists every hook name in firing order of a save.
var Names = []string{
	BeforeSave, BeforeInsert, AfterInsert, BeforeUpdate, AfterUpdate, AfterSave,
	BeforeDelete, AfterDelete, BeforeWith, LoadWith, AfterWith,
}

// ErrHalt stops the guarded operation when returned by a before-hook, or
// skips the relation when returned by a loadWith hook. Remaining hooks of the
// same name are not run.
var ErrHalt = errors.New("hooks: operation halted")

// Event is passed to every hook.
type Event struct {
	Name       string
	Entity     *entity.Entity
	Collection *entity.Collection
	Relation   string   // loadWith
	With       []string // beforeWith, afterWith
	Result     any      // after* hooks: the operation's result

	override   any
	overridden bool
}

// Override replaces the result returned to the caller. Only after-hooks
// of insert, update, delete and save honour it.
func (e *Event) Override(v any) {
	e.override = v
	e.overridden = true
}

// Overridden returns the replacement result, if a hook set one.
func (e *Event) Overridden() (any, bool) { return e.override, e.overridden }

// Hook handles one event.
type Hook func(ctx context.Context, ev *Event) error

// Declarer is implemented by definitions that carry their own hooks. They
// run after the hooks registered with Registry.On.
type Declarer interface {
	Hooks() map[string][]Hook
}

// ID identifies a registered hook for Off.
type ID uint64

type registered struct {
	id ID
	fn Hook
}

// Registry holds hooks per entity name. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	hooks  map[string]map[string][]registered
	nextID atomic.Uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]map[string][]registered)}
}

// On registers fn for entityName's hook and returns its ID.
func (r *Registry) On(entityName, hook string, fn Hook) ID {
	id := ID(r.nextID.Add(1))
	r.mu.Lock()
	defer r.mu.Unlock()
	byHook, ok := r.hooks[entityName]
	if !ok {
		byHook = make(map[string][]registered)
		r.hooks[entityName] = byHook
	}
	byHook[hook] = append(byHook[hook], registered{id: id, fn: fn})
	return id
}

// Off removes hooks of entityName. With ids only those are removed; without
// them every hook of that name. An empty hook name removes all of the
// entity's hooks.
func (r *Registry) Off(entityName, hook string, ids ...ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byHook, ok := r.hooks[entityName]
	if !ok {
		return
	}
	switch {
	case hook == "":
		delete(r.hooks, entityName)
	case len(ids) == 0:
		delete(byHook, hook)
	default:
		byHook[hook] = slices.DeleteFunc(byHook[hook], func(h registered) bool {
			return slices.Contains(ids, h.id)
		})
	}
}

// Get returns the hooks for entityName's hook: registered ones first, then
// those declared by decl when it implements Declarer.
func (r *Registry) Get(entityName, hook string, decl any) []Hook {
	r.mu.RLock()
	regs := r.hooks[entityName][hook]
	out := make([]Hook, 0, len(regs))
	for _, h := range regs {
		out = append(out, h.fn)
	}
	r.mu.RUnlock()

	if d, ok := decl.(Declarer); ok {
		out = append(out, d.Hooks()[hook]...)
	}
	return out
}

// Trigger runs the hooks for ev.Name in order. It reports halted when a hook
// returned ErrHalt; any other error stops the chain and is returned.
func (r *Registry) Trigger(ctx context.Context, entityName string, decl any, ev *Event) (halted bool, err error) {
	for _, h := range r.Get(entityName, ev.Name, decl) {
		if err := h(ctx, ev); err != nil {
			if errors.Is(err, ErrHalt) {
				return true, nil
			}
			return false, err
		}
	}
	return false, nil
}
