package hotstorage

import (
	"context"
	"database/sql/driver"
	"reflect"
	"sort"

	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/goliatone/go-repository-hotstorage/schema"
	"github.com/pkg/errors"
)

// Synchronizer keeps the cached blob and the secondary index keys of a
// record in step with its current field values. It must only be called
// after the backing store confirmed the corresponding write.
//
// Each call is a sequence of independent store operations. A failure stops
// the sequence and is returned; nothing is retried or rolled back, so the
// cache may be left partially updated. WithAtomicIndexes turns the sequence
// into one batch and WithRecordLocks serializes calls for the same record.
type Synchronizer[T any] struct {
	*core
	typ *schema.Type[T]
}

// NewSynchronizer creates a synchronizer for one record type.
func NewSynchronizer[T any](store cache.Store, typ *schema.Type[T], opts ...Option) *Synchronizer[T] {
	return newSynchronizer(newCore(store, opts), typ)
}

func newSynchronizer[T any](c *core, typ *schema.Type[T]) *Synchronizer[T] {
	return &Synchronizer[T]{core: c, typ: typ}
}

// recordKeys groups the keys owned by one record.
type recordKeys struct {
	pk       string
	record   string
	registry string
	all      string
}

func (s *Synchronizer[T]) keysFor(record T) (recordKeys, error) {
	pk, err := s.typ.PrimaryKeyValue(record)
	if err != nil {
		return recordKeys{}, err
	}
	if isNull(pk) {
		return recordKeys{}, errors.Errorf("hotstorage: %s record has no primary key value", s.typ.Name())
	}
	prefix := s.typ.Prefix()
	return recordKeys{
		pk:       s.keys.FormatValue(pk),
		record:   s.keys.RecordKey(prefix, pk),
		registry: s.keys.RegistryKey(prefix, pk),
		all:      s.keys.AllIDsKey(prefix),
	}, nil
}

// IndexKeys returns the index keys derived from the current field values of
// record, one per constraint. Constraints with a null field are skipped: a
// relational unique constraint does not apply to nulls, so such a key could
// be claimed by several records.
func (s *Synchronizer[T]) IndexKeys(record T) []string {
	prefix := s.typ.Prefix()
	var out []string
	seen := make(map[string]struct{})
	for _, values := range s.typ.ConstraintValues(record) {
		skip := false
		for _, v := range values {
			if isNull(v) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		key := s.keys.IndexKey(prefix, values)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// OnSaved writes the record blob, registers the primary key in the all-ids
// set and reconciles the index keys against the record's registry: current
// keys are pointed at the primary key and registered, keys no longer derived
// from the record are deleted and unregistered.
func (s *Synchronizer[T]) OnSaved(ctx context.Context, record T) error {
	keys, err := s.keysFor(record)
	if err != nil {
		return err
	}
	blob, err := encode(s.codec, record)
	if err != nil {
		return err
	}

	unlock := s.lock(keys.record)
	defer unlock()

	current := s.IndexKeys(record)

	if s.atomic != nil {
		existing, err := s.store.Members(ctx, keys.registry)
		if err != nil {
			return errors.Wrap(err, "read index registry")
		}
		err = s.atomic.Atomic(ctx, func(b cache.Batch) error {
			b.Set(keys.record, blob)
			b.AddToSet(keys.all, keys.pk)
			for _, key := range current {
				b.Set(key, []byte(keys.pk))
			}
			if sameMembers(existing, current) {
				return nil
			}
			added, stale := diffIndexes(existing, current)
			b.AddToSet(keys.registry, added...)
			b.Delete(stale...)
			b.RemoveFromSet(keys.registry, stale...)
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "apply save batch")
		}
		s.metrics.synced(s.typ.Name(), "save")
		return nil
	}

	if err := s.store.Set(ctx, keys.record, blob); err != nil {
		return errors.Wrap(err, "write record")
	}
	if err := s.store.AddToSet(ctx, keys.all, keys.pk); err != nil {
		return errors.Wrap(err, "register primary key")
	}

	existing, err := s.store.Members(ctx, keys.registry)
	if err != nil {
		return errors.Wrap(err, "read index registry")
	}

	// Fast path: the registry already holds exactly the current keys, so only
	// the keys themselves are rewritten. They may have been evicted or
	// repaired away while the registry survived.
	if sameMembers(existing, current) {
		for _, key := range current {
			if err := s.store.Set(ctx, key, []byte(keys.pk)); err != nil {
				return errors.Wrapf(err, "write index %s", key)
			}
		}
		s.metrics.synced(s.typ.Name(), "save")
		return nil
	}

	remaining := make(map[string]struct{}, len(existing))
	for _, key := range existing {
		remaining[key] = struct{}{}
	}

	for _, key := range current {
		if err := s.store.Set(ctx, key, []byte(keys.pk)); err != nil {
			return errors.Wrapf(err, "write index %s", key)
		}
		if _, ok := remaining[key]; ok {
			delete(remaining, key)
			continue
		}
		if err := s.store.AddToSet(ctx, keys.registry, key); err != nil {
			return errors.Wrapf(err, "register index %s", key)
		}
	}

	for _, key := range sortedKeys(remaining) {
		if err := s.store.Delete(ctx, key); err != nil {
			return errors.Wrapf(err, "delete stale index %s", key)
		}
		if err := s.store.RemoveFromSet(ctx, keys.registry, key); err != nil {
			return errors.Wrapf(err, "unregister stale index %s", key)
		}
	}

	s.metrics.synced(s.typ.Name(), "save")
	return nil
}

// OnDeleted removes the record blob, its primary key from the all-ids set,
// every registered index key and finally the registry itself.
func (s *Synchronizer[T]) OnDeleted(ctx context.Context, record T) error {
	keys, err := s.keysFor(record)
	if err != nil {
		return err
	}

	unlock := s.lock(keys.record)
	defer unlock()

	if s.atomic != nil {
		existing, err := s.store.Members(ctx, keys.registry)
		if err != nil {
			return errors.Wrap(err, "read index registry")
		}
		err = s.atomic.Atomic(ctx, func(b cache.Batch) error {
			b.Delete(keys.record)
			b.RemoveFromSet(keys.all, keys.pk)
			b.Delete(existing...)
			b.Delete(keys.registry)
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "apply delete batch")
		}
		s.metrics.synced(s.typ.Name(), "delete")
		return nil
	}

	if err := s.store.Delete(ctx, keys.record); err != nil {
		return errors.Wrap(err, "delete record")
	}
	if err := s.store.RemoveFromSet(ctx, keys.all, keys.pk); err != nil {
		return errors.Wrap(err, "unregister primary key")
	}
	existing, err := s.store.Members(ctx, keys.registry)
	if err != nil {
		return errors.Wrap(err, "read index registry")
	}
	if len(existing) > 0 {
		if err := s.store.Delete(ctx, existing...); err != nil {
			return errors.Wrap(err, "delete indexes")
		}
	}
	if err := s.store.Delete(ctx, keys.registry); err != nil {
		return errors.Wrap(err, "delete index registry")
	}

	s.metrics.synced(s.typ.Name(), "delete")
	return nil
}

// Purge drops every cache entry of the type reachable from the all-ids set.
// It is used when records were removed without being individually known.
func (s *Synchronizer[T]) Purge(ctx context.Context) (int, error) {
	n, err := PurgePrefix(ctx, s.store, s.keys, s.typ.Prefix())
	if err != nil {
		return n, err
	}
	s.metrics.synced(s.typ.Name(), "purge")
	return n, nil
}

// diffIndexes returns the current keys missing from the registry and the
// registered keys no longer current, both sorted.
func diffIndexes(existing, current []string) (added, stale []string) {
	remaining := make(map[string]struct{}, len(existing))
	for _, key := range existing {
		remaining[key] = struct{}{}
	}
	for _, key := range current {
		if _, ok := remaining[key]; ok {
			delete(remaining, key)
			continue
		}
		added = append(added, key)
	}
	sort.Strings(added)
	return added, sortedKeys(remaining)
}

func sameMembers(existing, current []string) bool {
	if len(existing) != len(current) {
		return false
	}
	set := make(map[string]struct{}, len(existing))
	for _, key := range existing {
		set[key] = struct{}{}
	}
	for _, key := range current {
		if _, ok := set[key]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// isNull reports nil values, nil pointers and driver.Valuers that store NULL.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return true
		}
	}
	if valuer, ok := v.(driver.Valuer); ok {
		value, err := valuer.Value()
		return err == nil && value == nil
	}
	return false
}
