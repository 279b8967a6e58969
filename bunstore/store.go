package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"sort"

	"github.com/goliatone/go-repository-hotstorage/hotstorage"
	"github.com/goliatone/go-repository-hotstorage/schema"
	pkgerrors "github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Store is a hotstorage.BackingStore over a bun connection. T must be a bun
// model struct or a pointer to one, and its schema type must use column
// names as field names, which FromBunModel does.
type Store[T any] struct {
	db  bun.IDB
	typ *schema.Type[T]
}

var (
	_ hotstorage.BackingStore[struct{}] = (*Store[struct{}])(nil)
	_ hotstorage.Lister[struct{}]       = (*Store[struct{}])(nil)
)

func New[T any](db bun.IDB, typ *schema.Type[T]) *Store[T] {
	return &Store[T]{db: db, typ: typ}
}

// CreateTable creates the model table, with its unique constraints, when it
// does not exist yet.
func (s *Store[T]) CreateTable(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model(newModel[T]()).IfNotExists().Exec(ctx)
	return pkgerrors.Wrap(err, "create table")
}

// Query selects at most two rows matching every field of predicate. A nil
// value matches NULL.
func (s *Store[T]) Query(ctx context.Context, predicate hotstorage.Predicate) (T, error) {
	var zero T
	var records []T

	q := s.db.NewSelect().Model(&records).Limit(2)
	for _, field := range sortedFields(predicate) {
		value := predicate[field]
		if value == nil {
			q = q.Where("? IS NULL", bun.Ident(field))
			continue
		}
		q = q.Where("? = ?", bun.Ident(field), value)
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, hotstorage.ErrNotFound
		}
		return zero, err
	}

	switch len(records) {
	case 0:
		return zero, hotstorage.ErrNotFound
	case 1:
		return records[0], nil
	default:
		return zero, hotstorage.ErrMultipleRecords
	}
}

// Save updates the row with the record's primary key and inserts it when no
// row was updated. A record with a zero primary key is always inserted so
// the database can assign one.
func (s *Store[T]) Save(ctx context.Context, record T) (T, error) {
	var zero T
	pk, err := s.typ.PrimaryKeyValue(record)
	if err != nil {
		return zero, err
	}
	m := modelOf(&record)

	if !isZero(pk) {
		res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
		if err != nil {
			return zero, pkgerrors.Wrap(err, "update")
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return record, nil
		}
	}

	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return zero, pkgerrors.Wrap(err, "insert")
	}
	return record, nil
}

func (s *Store[T]) Delete(ctx context.Context, record T) error {
	_, err := s.db.NewDelete().Model(modelOf(&record)).WherePK().Exec(ctx)
	return pkgerrors.Wrap(err, "delete")
}

// All lists every row ordered by primary key.
func (s *Store[T]) All(ctx context.Context) ([]T, error) {
	var records []T
	err := s.db.NewSelect().
		Model(&records).
		OrderExpr("? ASC", bun.Ident(s.typ.PrimaryKeyField())).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

// CountRows counts the rows of table whose column equals value. It needs no
// Go model, which lets tooling check cached ids against any table.
func CountRows(ctx context.Context, db bun.IDB, table, column string, value any) (int, error) {
	var n int
	err := db.NewSelect().
		ColumnExpr("count(*)").
		TableExpr("?", bun.Ident(table)).
		Where("? = ?", bun.Ident(column), value).
		Scan(ctx, &n)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "count %s", table)
	}
	return n, nil
}

// modelOf returns what bun expects as a model: the record itself when T is a
// pointer, its address otherwise.
func modelOf[T any](record *T) any {
	if reflect.TypeOf(record).Elem().Kind() == reflect.Ptr {
		return *record
	}
	return record
}

func newModel[T any]() any {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return reflect.New(rt).Interface()
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

func sortedFields(p hotstorage.Predicate) []string {
	fields := p.Fields()
	sort.Strings(fields)
	return fields
}
