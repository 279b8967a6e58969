package testsupport

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/goliatone/go-repository-hotstorage/hotstorage"
	"github.com/goliatone/go-repository-hotstorage/schema"
)

// ErrUniqueViolation is returned by MemoryBackend.Save when another record
// already holds the same values for a unique constraint.
var ErrUniqueViolation = errors.New("testsupport: unique constraint violation")

// MemoryBackend is an in-process hotstorage.BackingStore that enforces the
// unique constraints of its type and counts queries.
type MemoryBackend[T any] struct {
	typ    *schema.Type[T]
	values cache.KeyBuilder

	mu      sync.Mutex
	records map[string]T
	queries int
	saves   int

	failQuery  error
	failSave   error
	failDelete error
}

func NewMemoryBackend[T any](typ *schema.Type[T], records ...T) *MemoryBackend[T] {
	b := &MemoryBackend[T]{
		typ:     typ,
		values:  cache.NewDefaultKeyBuilder(),
		records: map[string]T{},
	}
	for _, r := range records {
		pk, _ := typ.PrimaryKeyValue(r)
		b.records[b.values.FormatValue(pk)] = r
	}
	return b
}

// Queries returns how many times Query was called.
func (b *MemoryBackend[T]) Queries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries
}

// Saves returns how many times Save was called.
func (b *MemoryBackend[T]) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func (b *MemoryBackend[T]) FailQuery(err error)  { b.mu.Lock(); b.failQuery = err; b.mu.Unlock() }
func (b *MemoryBackend[T]) FailSave(err error)   { b.mu.Lock(); b.failSave = err; b.mu.Unlock() }
func (b *MemoryBackend[T]) FailDelete(err error) { b.mu.Lock(); b.failDelete = err; b.mu.Unlock() }

// Put stores record without any checks, bypassing the cache entirely. Used to
// simulate writes made by another process.
func (b *MemoryBackend[T]) Put(record T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pk, _ := b.typ.PrimaryKeyValue(record)
	b.records[b.values.FormatValue(pk)] = record
}

// Remove drops the record with the given primary key, bypassing the cache.
func (b *MemoryBackend[T]) Remove(pk any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, b.values.FormatValue(pk))
}

func (b *MemoryBackend[T]) Query(_ context.Context, predicate hotstorage.Predicate) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries++

	var zero T
	if b.failQuery != nil {
		return zero, b.failQuery
	}

	var matches []T
	for _, pk := range b.sortedIDs() {
		record := b.records[pk]
		if b.matches(record, predicate) {
			matches = append(matches, record)
		}
	}

	switch len(matches) {
	case 0:
		return zero, hotstorage.ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return zero, hotstorage.ErrMultipleRecords
	}
}

func (b *MemoryBackend[T]) Save(_ context.Context, record T) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++

	var zero T
	if b.failSave != nil {
		return zero, b.failSave
	}

	pkValue, err := b.typ.PrimaryKeyValue(record)
	if err != nil {
		return zero, err
	}
	pk := b.values.FormatValue(pkValue)

	for _, values := range b.typ.ConstraintValues(record) {
		for otherPK, other := range b.records {
			if otherPK == pk {
				continue
			}
			if b.matches(other, hotstorage.Predicate(values)) && !hasNull(values) {
				return zero, fmt.Errorf("%w on %v", ErrUniqueViolation, values)
			}
		}
	}

	b.records[pk] = record
	return record, nil
}

func (b *MemoryBackend[T]) Delete(_ context.Context, record T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDelete != nil {
		return b.failDelete
	}
	pk, err := b.typ.PrimaryKeyValue(record)
	if err != nil {
		return err
	}
	delete(b.records, b.values.FormatValue(pk))
	return nil
}

func (b *MemoryBackend[T]) All(_ context.Context) ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, 0, len(b.records))
	for _, pk := range b.sortedIDs() {
		out = append(out, b.records[pk])
	}
	return out, nil
}

func (b *MemoryBackend[T]) matches(record T, predicate hotstorage.Predicate) bool {
	fields := b.typ.Fields(record)
	for name, want := range predicate {
		got, ok := fields[name]
		if !ok {
			return false
		}
		// nil matches NULL only, like IS NULL.
		gotNull, wantNull := isNullValue(got), isNullValue(want)
		if gotNull || wantNull {
			if gotNull != wantNull {
				return false
			}
			continue
		}
		if b.values.FormatValue(got) != b.values.FormatValue(want) {
			return false
		}
	}
	return true
}

func (b *MemoryBackend[T]) sortedIDs() []string {
	ids := make([]string, 0, len(b.records))
	for pk := range b.records {
		ids = append(ids, pk)
	}
	sort.Strings(ids)
	return ids
}

func hasNull(values map[string]any) bool {
	for _, v := range values {
		if isNullValue(v) {
			return true
		}
	}
	return false
}

func isNullValue(v any) bool {
	if v == nil {
		return true
	}
	if valuer, ok := v.(driver.Valuer); ok {
		raw, err := valuer.Value()
		return err == nil && raw == nil
	}
	return false
}
