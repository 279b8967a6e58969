package hotstorage

import (
	"context"
	"errors"

	"github.com/goliatone/go-repository-hotstorage/cache"
	pkgerrors "github.com/pkg/errors"
)

// The functions in this file work on prefixes and raw keys only, so they can
// inspect any record type without its Go definition.

// IndexEntry is one registered index key and what it currently resolves to.
type IndexEntry struct {
	Key string `json:"key"`
	// Target is the primary key the index points at, empty when missing.
	Target string `json:"target"`
}

// Entry describes the cache state of one record.
type Entry struct {
	Prefix    string       `json:"prefix"`
	PK        string       `json:"pk"`
	RecordKey string       `json:"record_key"`
	Cached    bool         `json:"cached"`
	Size      int          `json:"size"`
	Listed    bool         `json:"listed"`
	Indexes   []IndexEntry `json:"indexes"`
}

// Inspect reads the blob, all-ids membership and index registry of one record.
func Inspect(ctx context.Context, store cache.Store, keys cache.KeyBuilder, prefix, pk string) (*Entry, error) {
	entry := &Entry{
		Prefix:    prefix,
		PK:        pk,
		RecordKey: keys.RecordKey(prefix, pk),
	}

	blob, err := store.Get(ctx, entry.RecordKey)
	switch {
	case err == nil:
		entry.Cached = true
		entry.Size = len(blob)
	case !errors.Is(err, cache.ErrCacheMiss):
		return nil, pkgerrors.Wrap(err, "read record")
	}

	ids, err := store.Members(ctx, keys.AllIDsKey(prefix))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read all-ids set")
	}
	for _, id := range ids {
		if id == pk {
			entry.Listed = true
			break
		}
	}

	registered, err := store.Members(ctx, keys.RegistryKey(prefix, pk))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read index registry")
	}
	for _, key := range registered {
		target, err := resolveIndex(ctx, store, key)
		if err != nil {
			return nil, err
		}
		entry.Indexes = append(entry.Indexes, IndexEntry{Key: key, Target: target})
	}

	return entry, nil
}

// IndexProblem is a registered index key that does not resolve to its owner.
type IndexProblem struct {
	PK       string `json:"pk"`
	IndexKey string `json:"index_key"`
	Target   string `json:"target"`
}

// Report is the result of VerifyPrefix.
type Report struct {
	Prefix  string `json:"prefix"`
	Records int    `json:"records"`
	// MissingRecords are ids listed in the all-ids set without a blob.
	MissingRecords []string `json:"missing_records,omitempty"`
	// BrokenIndexes are registry entries that are missing or point elsewhere.
	BrokenIndexes []IndexProblem `json:"broken_indexes,omitempty"`
}

// Consistent reports whether no problem was found.
func (r *Report) Consistent() bool {
	return len(r.MissingRecords) == 0 && len(r.BrokenIndexes) == 0
}

// VerifyPrefix walks the all-ids set of prefix and checks that each listed
// record is cached and that every key in its index registry resolves to it.
// It only reads.
func VerifyPrefix(ctx context.Context, store cache.Store, keys cache.KeyBuilder, prefix string) (*Report, error) {
	ids, err := store.Members(ctx, keys.AllIDsKey(prefix))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read all-ids set")
	}

	report := &Report{Prefix: prefix, Records: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, err := store.Get(ctx, keys.RecordKey(prefix, id))
		if errors.Is(err, cache.ErrCacheMiss) {
			report.MissingRecords = append(report.MissingRecords, id)
		} else if err != nil {
			return nil, pkgerrors.Wrapf(err, "read record %s", id)
		}

		registered, err := store.Members(ctx, keys.RegistryKey(prefix, id))
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "read index registry of %s", id)
		}
		for _, key := range registered {
			target, err := resolveIndex(ctx, store, key)
			if err != nil {
				return nil, err
			}
			if target != id {
				report.BrokenIndexes = append(report.BrokenIndexes, IndexProblem{PK: id, IndexKey: key, Target: target})
			}
		}
	}
	return report, nil
}

// PurgePrefix deletes the blob, index keys and registry of every record in
// the all-ids set of prefix, then the set itself. Index keys of records that
// were never listed are not reachable and stay in place.
func PurgePrefix(ctx context.Context, store cache.Store, keys cache.KeyBuilder, prefix string) (int, error) {
	allKey := keys.AllIDsKey(prefix)
	ids, err := store.Members(ctx, allKey)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "read all-ids set")
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		registryKey := keys.RegistryKey(prefix, id)
		registered, err := store.Members(ctx, registryKey)
		if err != nil {
			return i, pkgerrors.Wrapf(err, "read index registry of %s", id)
		}
		doomed := append(registered, keys.RecordKey(prefix, id), registryKey)
		if err := store.Delete(ctx, doomed...); err != nil {
			return i, pkgerrors.Wrapf(err, "delete entries of %s", id)
		}
		if err := store.RemoveFromSet(ctx, allKey, id); err != nil {
			return i, pkgerrors.Wrapf(err, "unregister %s", id)
		}
	}
	return len(ids), nil
}

func resolveIndex(ctx context.Context, store cache.Store, key string) (string, error) {
	target, err := store.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrapf(err, "read index %s", key)
	}
	return string(target), nil
}
