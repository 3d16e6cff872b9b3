// pkg/spot/relation.go
package spot

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cast"

	"github.com/vlucas/spot/pkg/entity"
	"github.com/vlucas/spot/pkg/hooks"
	"github.com/vlucas/spot/pkg/query"
	"github.com/vlucas/spot/pkg/schema"
)

// Related resolves relation name of e on demand:
//   - HasMany returns an unexecuted *query.Query,
//   - HasOne returns the *entity.Entity, or nil when none matches,
//   - HasManyThrough returns the *entity.Collection of targets.
func (m *Mapper) Related(ctx context.Context, e *entity.Entity, name string) (any, error) {
	rel, err := relation(e.Meta(), name)
	if err != nil {
		return nil, err
	}
	owners := []*entity.Entity{e}
	switch rel.Kind {
	case schema.HasMany:
		return m.relationQuery(rel.Entity, rel.Where, rel.Order, owners)
	case schema.HasOne:
		q, err := m.relationQuery(rel.Entity, rel.Where, rel.Order, owners)
		if err != nil {
			return nil, err
		}
		one, err := q.First(ctx)
		if errors.Is(err, query.ErrNotFound) {
			return nil, nil
		}
		return one, err
	default:
		_, targets, err := m.through(ctx, rel, owners)
		return targets, err
	}
}

// LoadRelations loads the named relations of e (all of them when none are
// named) and stores them on the entity, as With does for query results.
func (m *Mapper) LoadRelations(ctx context.Context, e *entity.Entity, names ...string) error {
	meta := e.Meta()
	if len(names) == 0 {
		names = slices.Sorted(maps.Keys(meta.Relations))
	}
	return m.loadWith(ctx, meta, entity.NewCollection(meta.Name, []*entity.Entity{e}), names)
}

func relation(meta *schema.Metadata, name string) (schema.Relation, error) {
	rel, ok := meta.Relation(name)
	if !ok {
		return schema.Relation{}, fmt.Errorf("spot: entity %s has no relation '%s'", meta.Name, name)
	}
	return rel, nil
}

// loadWith eager-loads relations for a whole collection with one query per
// relation and attaches each entity's share.
func (m *Mapper) loadWith(ctx context.Context, meta *schema.Metadata, col *entity.Collection, names []string) error {
	stop, err := m.trigger(ctx, meta, &hooks.Event{Name: hooks.BeforeWith, Collection: col, With: names})
	if err != nil || stop {
		return err
	}
	for _, name := range names {
		rel, err := relation(meta, name)
		if err != nil {
			return err
		}
		stop, err := m.trigger(ctx, meta, &hooks.Event{Name: hooks.LoadWith, Collection: col, Relation: name})
		if err != nil {
			return err
		}
		if stop {
			continue
		}
		if err := m.eager(ctx, col, name, rel); err != nil {
			return fmt.Errorf("spot: loading %s.%s: %w", meta.Name, name, err)
		}
	}
	_, err = m.trigger(ctx, meta, &hooks.Event{Name: hooks.AfterWith, Collection: col, With: names})
	return err
}

func (m *Mapper) eager(ctx context.Context, col *entity.Collection, name string, rel schema.Relation) error {
	owners := col.Entities()

	if rel.Kind == schema.HasManyThrough {
		joins, targets, err := m.through(ctx, rel, owners)
		if err != nil {
			return err
		}
		for _, owner := range owners {
			own := filter(joins.Entities(), func(j *entity.Entity) bool {
				return matches(rel.ThroughWhere, schema.EntityRef, owner, j)
			})
			mine := filter(targets.Entities(), func(t *entity.Entity) bool {
				if !matches(rel.Where, schema.EntityRef, owner, t) {
					return false
				}
				return slices.ContainsFunc(own, func(j *entity.Entity) bool {
					return matches(rel.Where, schema.ThroughRef, j, t)
				})
			})
			owner.SetRelation(name, entity.NewCollection(targets.EntityName(), mine))
		}
		return nil
	}

	q, err := m.relationQuery(rel.Entity, rel.Where, rel.Order, owners)
	if err != nil {
		return err
	}
	related, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	for _, owner := range owners {
		mine := filter(related.Entities(), func(r *entity.Entity) bool {
			return matches(rel.Where, schema.EntityRef, owner, r)
		})
		if rel.Kind == schema.HasOne {
			if len(mine) == 0 {
				owner.SetRelation(name, nil)
			} else {
				owner.SetRelation(name, mine[0])
			}
			continue
		}
		owner.SetRelation(name, entity.NewCollection(related.EntityName(), mine))
	}
	return nil
}

// through loads the join rows of a HasManyThrough relation for owners and
// the targets they reference.
func (m *Mapper) through(ctx context.Context, rel schema.Relation, owners []*entity.Entity) (joins, targets *entity.Collection, err error) {
	jq, err := m.relationQuery(rel.Through, rel.ThroughWhere, nil, owners)
	if err != nil {
		return nil, nil, err
	}
	if joins, err = jq.Execute(ctx); err != nil {
		return nil, nil, err
	}

	where := resolve(rel.Where, schema.EntityRef, owners)
	where = resolve(where, schema.ThroughRef, joins.Entities())
	tq, err := m.Select(rel.Entity)
	if err != nil {
		return nil, nil, err
	}
	applyRelation(tq, where, rel.Order)
	if targets, err = tq.Execute(ctx); err != nil {
		return nil, nil, err
	}
	return joins, targets, nil
}

func (m *Mapper) relationQuery(def schema.Definition, where map[string]any, order []schema.OrderBy, owners []*entity.Entity) (*query.Query, error) {
	q, err := m.Select(def)
	if err != nil {
		return nil, err
	}
	applyRelation(q, resolve(where, schema.EntityRef, owners), order)
	return q, q.Err()
}

func applyRelation(q *query.Query, where query.Conditions, order []schema.OrderBy) {
	if len(where) > 0 {
		q.Where(where)
	}
	for _, o := range order {
		if o.Direction == "" {
			q.Order(o.Field)
		} else {
			q.Order(o.Field, o.Direction)
		}
	}
}

// resolve replaces prefix placeholders in where with the referenced field
// of sources: the value itself for one source, otherwise the distinct
// non-nil values as a list (compiled to IN).
func resolve(where map[string]any, prefix string, sources []*entity.Entity) query.Conditions {
	out := make(query.Conditions, len(where))
	for key, v := range where {
		field, ok := schema.RefField(v, prefix)
		if !ok {
			out[key] = v
			continue
		}
		if len(sources) == 1 {
			out[key] = sources[0].Get(field)
			continue
		}
		seen := make(map[string]bool)
		values := []any{}
		for _, s := range sources {
			val := s.Get(field)
			if val == nil || seen[cast.ToString(val)] {
				continue
			}
			seen[cast.ToString(val)] = true
			values = append(values, val)
		}
		out[key] = values
	}
	return out
}

// matches reports whether related agrees with source on every equality
// condition of where that references source through prefix.
func matches(where map[string]any, prefix string, source, related *entity.Entity) bool {
	for key, v := range where {
		field, ok := schema.RefField(v, prefix)
		if !ok {
			continue
		}
		column, op, err := query.ParseKey(key)
		if err != nil || (op != "=" && op != "IN") {
			continue
		}
		want, got := source.Get(field), related.Get(column)
		if want == nil || got == nil || cast.ToString(want) != cast.ToString(got) {
			return false
		}
	}
	return true
}

func filter(in []*entity.Entity, keep func(*entity.Entity) bool) []*entity.Entity {
	var out []*entity.Entity
	for _, e := range in {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
