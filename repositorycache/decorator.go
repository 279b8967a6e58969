package repositorycache

import (
	"context"
	"sort"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/goliatone/go-repository-hotstorage/hotstorage"
	"github.com/goliatone/go-repository-hotstorage/schema"
	"github.com/uptrace/bun"
)

// Interface assertion to ensure HotRepository implements Repository[T]
var _ repository.Repository[any] = (*HotRepository[any])(nil)

// HotRepository decorates a base repository with write-through hot storage.
// Point reads by ID or identifier are answered from the cache; every write
// that succeeds on the base repository is mirrored into the cache.
type HotRepository[T any] struct {
	base       repository.Repository[T]
	hot        *hotstorage.Store[T]
	identifier string
}

// Option configures a HotRepository.
type Option func(*settings)

type settings struct {
	identifier string
	hot        []hotstorage.Option
}

// WithIdentifierField names the column GetByIdentifier matches on. It must be
// a single-field unique constraint of the type for lookups to use the cache.
func WithIdentifierField(field string) Option {
	return func(s *settings) { s.identifier = field }
}

// WithHotStorageOptions forwards options to the underlying hotstorage.Store.
func WithHotStorageOptions(opts ...hotstorage.Option) Option {
	return func(s *settings) { s.hot = append(s.hot, opts...) }
}

// New wraps base. typ must describe the same model base persists.
func New[T any](base repository.Repository[T], store cache.Store, typ *schema.Type[T], opts ...Option) *HotRepository[T] {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	return &HotRepository[T]{
		base:       base,
		hot:        hotstorage.New(store, typ, &backing[T]{base: base}, s.hot...),
		identifier: s.identifier,
	}
}

// HotStore exposes the underlying store for warm up and maintenance.
func (c *HotRepository[T]) HotStore() *hotstorage.Store[T] {
	return c.hot
}

// Lookup resolves an exact-match predicate through the hot storage router.
func (c *HotRepository[T]) Lookup(ctx context.Context, predicate hotstorage.Predicate) (T, error) {
	return c.hot.Get(ctx, predicate)
}

// Get passes through: criteria are opaque query builders and cannot be keyed.
func (c *HotRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.Get(ctx, criteria...)
}

// GetByID answers from the cache when no criteria are given. A cache miss
// returns hotstorage.ErrNotFound unless the store was configured with
// hotstorage.WithPrimaryKeyFallthrough.
func (c *HotRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 {
		return c.base.GetByID(ctx, id, criteria...)
	}
	return c.hot.GetByPK(ctx, id)
}

func (c *HotRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.List(ctx, criteria...)
}

func (c *HotRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.Count(ctx, criteria...)
}

// GetByIdentifier uses the identifier constraint when one is configured and
// no criteria are given. Misses fall through to the base repository.
func (c *HotRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 || c.identifier == "" {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}
	query := hotstorage.Predicate{c.identifier: identifier}
	if c.hot.Router().Route(query) != hotstorage.RouteConstraint {
		return c.base.GetByIdentifier(ctx, identifier)
	}
	return c.hot.Get(ctx, query)
}

func (c *HotRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.hot.AfterSave(ctx, result)
	}
	return result, err
}

// CreateTx mirrors the record as soon as the statement succeeds, before the
// transaction commits. A rollback leaves the cache ahead of the database.
func (c *HotRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.hot.AfterSave(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.saved(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.saved(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.hot.AfterSave(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.hot.AfterSave(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.hot.AfterSave(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.hot.AfterSave(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.saved(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.saved(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.hot.AfterSave(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.hot.AfterSave(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.saved(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.saved(ctx, result)
	}
	return result, err
}

func (c *HotRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.hot.AfterDelete(ctx, record)
	}
	return err
}

func (c *HotRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.hot.AfterDelete(ctx, record)
	}
	return err
}

// DeleteMany purges every cached record of the type: the deleted rows are
// not known individually.
func (c *HotRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.hot.AfterBulkDelete(ctx)
	}
	return err
}

func (c *HotRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.hot.AfterBulkDelete(ctx)
	}
	return err
}

func (c *HotRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.hot.AfterBulkDelete(ctx)
	}
	return err
}

func (c *HotRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.hot.AfterBulkDelete(ctx)
	}
	return err
}

func (c *HotRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.hot.AfterDelete(ctx, record)
	}
	return err
}

func (c *HotRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.hot.AfterDelete(ctx, record)
	}
	return err
}

// Reads inside a transaction always go to the base repository so they see
// uncommitted rows.

func (c *HotRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

func (c *HotRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

func (c *HotRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

func (c *HotRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

func (c *HotRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

func (c *HotRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

func (c *HotRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

func (c *HotRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

func (c *HotRepository[T]) saved(ctx context.Context, records []T) {
	for _, record := range records {
		c.hot.AfterSave(ctx, record)
	}
}

// backing adapts a repository to hotstorage.BackingStore. Predicates become
// equality criteria on the select query.
type backing[T any] struct {
	base repository.Repository[T]
}

func (b *backing[T]) Query(ctx context.Context, predicate hotstorage.Predicate) (T, error) {
	record, err := b.base.Get(ctx, predicateCriteria(predicate))
	if err != nil {
		var zero T
		if repository.IsRecordNotFound(err) {
			return zero, hotstorage.ErrNotFound
		}
		return zero, err
	}
	return record, nil
}

func (b *backing[T]) Save(ctx context.Context, record T) (T, error) {
	return b.base.Upsert(ctx, record)
}

func (b *backing[T]) Delete(ctx context.Context, record T) error {
	return b.base.Delete(ctx, record)
}

func (b *backing[T]) All(ctx context.Context) ([]T, error) {
	records, _, err := b.base.List(ctx)
	return records, err
}

func predicateCriteria(predicate hotstorage.Predicate) repository.SelectCriteria {
	fields := predicate.Fields()
	sort.Strings(fields)
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, field := range fields {
			if value := predicate[field]; value == nil {
				q = q.Where("?TableAlias.? IS NULL", bun.Ident(field))
			} else {
				q = q.Where("?TableAlias.? = ?", bun.Ident(field), value)
			}
		}
		return q
	}
}
