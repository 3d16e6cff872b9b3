// pkg/spot/mapper.go
package spot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/vlucas/spot/pkg/adapter"
	"github.com/vlucas/spot/pkg/entity"
	"github.com/vlucas/spot/pkg/hooks"
	"github.com/vlucas/spot/pkg/query"
	"github.com/vlucas/spot/pkg/schema"
	"github.com/vlucas/spot/pkg/types"
	"github.com/vlucas/spot/pkg/validation"
)

// Mapper persists and loads entities. It holds no per-entity state; a
// Mapper returned by Transaction routes one connection through the
// transaction and shares everything else with its parent.
type Mapper struct {
	config    *Config
	manager   *schema.Manager
	hooks     *hooks.Registry
	validator validation.Validator
	logger    *slog.Logger

	tx map[string]*adapter.Adapter // connection name -> transaction adapter
}

// Option configures a Mapper.
type Option func(*Mapper)

func WithManager(m *schema.Manager) Option        { return func(mp *Mapper) { mp.manager = m } }
func WithHooks(r *hooks.Registry) Option          { return func(mp *Mapper) { mp.hooks = r } }
func WithValidator(v validation.Validator) Option { return func(mp *Mapper) { mp.validator = v } }

// WithLogger sets the mapper's logger. Adapters keep the Config's logger.
func WithLogger(l *slog.Logger) Option {
	return func(mp *Mapper) {
		if l != nil {
			mp.logger = l
		}
	}
}

// New returns a mapper over cfg's connections.
func New(cfg *Config, opts ...Option) *Mapper {
	m := &Mapper{
		config: cfg,
		logger: cfg.Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.manager == nil {
		m.manager = schema.NewManager(types.NewRegistry(), nil)
	}
	if m.hooks == nil {
		m.hooks = hooks.NewRegistry()
	}
	if m.validator == nil {
		m.validator = validation.New()
	}
	return m
}

func (m *Mapper) Config() *Config           { return m.config }
func (m *Mapper) Manager() *schema.Manager  { return m.manager }
func (m *Mapper) Hooks() *hooks.Registry    { return m.hooks }
func (m *Mapper) Registry() *types.Registry { return m.manager.Registry() }
func (m *Mapper) Logger() *slog.Logger      { return m.logger }
func (m *Mapper) InTransaction() bool       { return len(m.tx) > 0 }
func (m *Mapper) Metadata(def schema.Definition) (*schema.Metadata, error) {
	return m.manager.Metadata(def)
}

// Connection returns the adapter for a connection name, or the default for
// an empty name. Inside a transaction the transaction's adapter is returned.
func (m *Mapper) Connection(name string) (*adapter.Adapter, error) {
	if name == "" {
		name = m.config.DefaultName()
	}
	if a, ok := m.tx[name]; ok {
		return a, nil
	}
	return m.config.Connection(name)
}

func (m *Mapper) connection(meta *schema.Metadata) (*adapter.Adapter, error) {
	return m.Connection(meta.Connection)
}

// --- Hooks ---

// On registers a hook for def's entity and returns its ID.
func (m *Mapper) On(def schema.Definition, hook string, fn hooks.Hook) hooks.ID {
	return m.hooks.On(schema.EntityName(def), hook, fn)
}

// Off removes hooks of def's entity; see hooks.Registry.Off.
func (m *Mapper) Off(def schema.Definition, hook string, ids ...hooks.ID) {
	m.hooks.Off(schema.EntityName(def), hook, ids...)
}

func (m *Mapper) trigger(ctx context.Context, meta *schema.Metadata, ev *hooks.Event) (bool, error) {
	halted, err := m.hooks.Trigger(ctx, meta.Name, meta.Definition(), ev)
	if err != nil {
		return false, fmt.Errorf("spot: %s hook of %s: %w", ev.Name, meta.Name, err)
	}
	if halted {
		m.logger.Debug("operation halted by hook", "entity", meta.Name, "hook", ev.Name)
	}
	return halted, nil
}

// --- Entities ---

// New returns a new entity of def carrying the field defaults.
func (m *Mapper) New(def schema.Definition) (*entity.Entity, error) {
	return m.Build(def, nil)
}

// Build returns a new entity of def from data.
func (m *Mapper) Build(def schema.Definition, data map[string]any) (*entity.Entity, error) {
	meta, err := m.manager.Metadata(def)
	if err != nil {
		return nil, err
	}
	return entity.New(meta, m.Registry(), data)
}

// Get loads the entity with primary key id. A nil id returns a new entity.
// A missing row yields query.ErrNotFound.
func (m *Mapper) Get(ctx context.Context, def schema.Definition, id any) (*entity.Entity, error) {
	if id == nil {
		return m.New(def)
	}
	meta, err := m.manager.Metadata(def)
	if err != nil {
		return nil, err
	}
	return m.First(ctx, def, query.Conditions{meta.PrimaryKey.Name: id})
}

// Create builds an entity from data and inserts it. A halted insert
// returns hooks.ErrHalt and a failed validation *ValidationError; the
// entity is returned in both cases.
func (m *Mapper) Create(ctx context.Context, def schema.Definition, data map[string]any) (*entity.Entity, error) {
	e, err := m.Build(def, data)
	if err != nil {
		return nil, err
	}
	if err := m.Insert(ctx, e).Err(); err != nil {
		return e, err
	}
	return e, nil
}

// --- Queries ---

// Select starts a query on def, optionally projecting fields.
func (m *Mapper) Select(def schema.Definition, fields ...string) (*query.Query, error) {
	meta, err := m.manager.Metadata(def)
	if err != nil {
		return nil, err
	}
	return query.New(m, meta).Select(fields...), nil
}

// All starts a query on def filtered by conds.
func (m *Mapper) All(def schema.Definition, conds query.Conditions) (*query.Query, error) {
	q, err := m.Select(def)
	if err != nil {
		return nil, err
	}
	if len(conds) > 0 {
		q.Where(conds)
	}
	return q, nil
}

// First returns the first entity matching conds, or query.ErrNotFound.
func (m *Mapper) First(ctx context.Context, def schema.Definition, conds query.Conditions) (*entity.Entity, error) {
	q, err := m.All(def, conds)
	if err != nil {
		return nil, err
	}
	return q.First(ctx)
}

// Query runs raw SQL on def's connection and loads the rows as def's entities.
func (m *Mapper) Query(ctx context.Context, def schema.Definition, sql string, args ...any) (*entity.Collection, error) {
	meta, err := m.manager.Metadata(def)
	if err != nil {
		return nil, err
	}
	conn, err := m.connection(meta)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return m.collect(meta, rows)
}

// Read implements query.Executor.
func (m *Mapper) Read(ctx context.Context, q *query.Query) (*entity.Collection, error) {
	conn, err := m.connection(q.Meta())
	if err != nil {
		return nil, err
	}
	return conn.Read(ctx, q, m.hydrate)
}

// Count implements query.Executor.
func (m *Mapper) Count(ctx context.Context, q *query.Query) (int64, error) {
	conn, err := m.connection(q.Meta())
	if err != nil {
		return 0, err
	}
	return conn.Count(ctx, q)
}

func (m *Mapper) hydrate(ctx context.Context, q *query.Query, rows []map[string]any) (*entity.Collection, error) {
	col, err := m.collect(q.Meta(), rows)
	if err != nil {
		return nil, err
	}
	if with := q.State().With; len(with) > 0 && col.Len() > 0 {
		if err := m.loadWith(ctx, q.Meta(), col, with); err != nil {
			return nil, err
		}
	}
	return col, nil
}

func (m *Mapper) collect(meta *schema.Metadata, rows []map[string]any) (*entity.Collection, error) {
	out := make([]*entity.Entity, 0, len(rows))
	for _, row := range rows {
		e, err := entity.Load(meta, m.Registry(), row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return entity.NewCollection(meta.Name, out), nil
}

// --- Persistence ---

// Save inserts a new entity or updates a persisted one, between the
// beforeSave and afterSave hooks. afterSave also runs when the write fails.
func (m *Mapper) Save(ctx context.Context, e *entity.Entity) *Result {
	meta := e.Meta()
	if stop, err := m.trigger(ctx, meta, &hooks.Event{Name: hooks.BeforeSave, Entity: e}); err != nil {
		return failed(err)
	} else if stop {
		return halted()
	}

	var res *Result
	if e.IsNew() {
		res = m.Insert(ctx, e)
	} else {
		res = m.Update(ctx, e)
	}
	return m.after(ctx, meta, &hooks.Event{Name: hooks.AfterSave, Entity: e, Result: res.Value}, res)
}

// Insert writes a new entity. Its primary key is set from the database and
// it is marked persisted.
func (m *Mapper) Insert(ctx context.Context, e *entity.Entity) *Result {
	meta := e.Meta()
	if stop, err := m.trigger(ctx, meta, &hooks.Event{Name: hooks.BeforeInsert, Entity: e}); err != nil {
		return failed(err)
	} else if stop {
		return halted()
	}
	if err := m.Validate(ctx, e); err != nil {
		return failed(err)
	}

	data, err := e.Dump(false)
	if err != nil {
		return failed(err)
	}
	pk := meta.PrimaryKey.Name
	if v, ok := data[pk]; ok && v == nil {
		delete(data, pk)
	}
	conn, err := m.connection(meta)
	if err != nil {
		return failed(err)
	}
	id, err := conn.Create(ctx, meta.Datasource, data, pk)
	if err != nil {
		return failed(fmt.Errorf("spot: inserting %s: %w", meta.Name, err))
	}
	if id != nil {
		if err := e.Merge(map[string]any{pk: id}, false); err != nil {
			return failed(err)
		}
		id = e.Get(pk)
	}
	e.Commit()

	res := &Result{Value: id, RowsAffected: 1}
	return m.after(ctx, meta, &hooks.Event{Name: hooks.AfterInsert, Entity: e, Result: id}, res)
}

// Update writes the modified fields of a persisted entity. Nothing
// modified is a successful no-op that fires no after-hook.
func (m *Mapper) Update(ctx context.Context, e *entity.Entity) *Result {
	meta := e.Meta()
	if stop, err := m.trigger(ctx, meta, &hooks.Event{Name: hooks.BeforeUpdate, Entity: e}); err != nil {
		return failed(err)
	} else if stop {
		return halted()
	}
	if err := m.Validate(ctx, e); err != nil {
		return failed(err)
	}

	data, err := e.Dump(true)
	if err != nil {
		return failed(err)
	}
	if len(data) == 0 {
		return &Result{Value: int64(0)}
	}
	conn, err := m.connection(meta)
	if err != nil {
		return failed(err)
	}
	affected, err := conn.Update(ctx, meta.Datasource, data, m.byPrimaryKey(e))
	if err != nil {
		return failed(fmt.Errorf("spot: updating %s: %w", meta.Name, err))
	}
	e.Commit()

	res := &Result{Value: affected, RowsAffected: affected}
	return m.after(ctx, meta, &hooks.Event{Name: hooks.AfterUpdate, Entity: e, Result: affected}, res)
}

// Delete removes a persisted entity by primary key between the
// beforeDelete and afterDelete hooks.
func (m *Mapper) Delete(ctx context.Context, e *entity.Entity) *Result {
	meta := e.Meta()
	if stop, err := m.trigger(ctx, meta, &hooks.Event{Name: hooks.BeforeDelete, Entity: e}); err != nil {
		return failed(err)
	} else if stop {
		return halted()
	}
	conn, err := m.connection(meta)
	if err != nil {
		return failed(err)
	}
	affected, err := conn.Delete(ctx, meta.Datasource, m.byPrimaryKey(e))
	if err != nil {
		return failed(fmt.Errorf("spot: deleting %s: %w", meta.Name, err))
	}

	res := &Result{Value: affected, RowsAffected: affected}
	return m.after(ctx, meta, &hooks.Event{Name: hooks.AfterDelete, Entity: e, Result: affected}, res)
}

// DeleteWhere deletes def's rows matching conds without loading them or
// firing hooks. Empty conds delete every row.
func (m *Mapper) DeleteWhere(ctx context.Context, def schema.Definition, conds query.Conditions) (int64, error) {
	meta, err := m.manager.Metadata(def)
	if err != nil {
		return 0, err
	}
	conn, err := m.connection(meta)
	if err != nil {
		return 0, err
	}
	var where []query.Group
	if len(conds) > 0 {
		where = []query.Group{{Conditions: conds}}
	}
	return conn.Delete(ctx, meta.Datasource, where)
}

// Upsert inserts data, or when the insert fails validation (typically a
// taken unique value) updates the row matching where with data minus the
// where keys. A row inserted concurrently between the failed insert and
// the lookup is not retried.
func (m *Mapper) Upsert(ctx context.Context, def schema.Definition, data map[string]any, where query.Conditions) (*entity.Entity, *Result) {
	e, err := m.Build(def, data)
	if err != nil {
		return nil, failed(err)
	}
	res := m.Insert(ctx, e)
	var verr *ValidationError
	if res.OK() || !errors.As(res.Error, &verr) {
		return e, res
	}

	existing, err := m.First(ctx, def, where)
	if errors.Is(err, query.ErrNotFound) {
		return e, res
	}
	if err != nil {
		return e, failed(err)
	}
	changes := maps.Clone(data)
	for k := range where {
		delete(changes, k)
	}
	if err := existing.Merge(changes, true); err != nil {
		return existing, failed(err)
	}
	return existing, m.Update(ctx, existing)
}

func (m *Mapper) byPrimaryKey(e *entity.Entity) []query.Group {
	pk := e.Meta().PrimaryKey.Name
	id, ok := e.DataUnmodified()[pk]
	if !ok {
		id = e.PrimaryKey()
	}
	return []query.Group{{Conditions: query.Conditions{pk: id}}}
}

func (m *Mapper) after(ctx context.Context, meta *schema.Metadata, ev *hooks.Event, res *Result) *Result {
	if _, err := m.trigger(ctx, meta, ev); err != nil {
		if res.Error == nil {
			res.Error = err
		}
		return res
	}
	if v, ok := ev.Overridden(); ok {
		// An override replaces the outcome, failed or not.
		return &Result{Value: v, RowsAffected: res.RowsAffected}
	}
	return res
}

// --- Schema ---

// Migrate creates or alters the table of every def.
func (m *Mapper) Migrate(ctx context.Context, defs ...schema.Definition) error {
	for _, def := range defs {
		meta, conn, err := m.resolve(def)
		if err != nil {
			return err
		}
		if err := conn.Migrate(ctx, m.storage(meta)); err != nil {
			return fmt.Errorf("spot: migrating %s: %w", meta.Name, err)
		}
	}
	return nil
}

// MigrateSQL returns the statements Migrate would execute for def.
func (m *Mapper) MigrateSQL(ctx context.Context, def schema.Definition) ([]string, error) {
	meta, conn, err := m.resolve(def)
	if err != nil {
		return nil, err
	}
	return conn.MigrateSQL(ctx, m.storage(meta))
}

// storage maps custom field types to the column types they are stored as.
func (m *Mapper) storage(meta *schema.Metadata) *schema.Metadata {
	return meta.WithStorageTypes(m.Registry().StorageType)
}

// TruncateDatasource deletes every row of def's table.
func (m *Mapper) TruncateDatasource(ctx context.Context, def schema.Definition) error {
	meta, conn, err := m.resolve(def)
	if err != nil {
		return err
	}
	return conn.TruncateDatasource(ctx, meta.Datasource)
}

// DropDatasource drops def's table.
func (m *Mapper) DropDatasource(ctx context.Context, def schema.Definition) error {
	meta, conn, err := m.resolve(def)
	if err != nil {
		return err
	}
	return conn.DropDatasource(ctx, meta.Datasource)
}

func (m *Mapper) resolve(def schema.Definition) (*schema.Metadata, *adapter.Adapter, error) {
	meta, err := m.manager.Metadata(def)
	if err != nil {
		return nil, nil, err
	}
	conn, err := m.connection(meta)
	if err != nil {
		return nil, nil, err
	}
	return meta, conn, nil
}
