package hotstorage

import "context"

// Predicate is an exact-match query: field name to expected value.
type Predicate map[string]any

// Fields returns the field names of the predicate.
func (p Predicate) Fields() []string {
	fields := make([]string, 0, len(p))
	for f := range p {
		fields = append(fields, f)
	}
	return fields
}

// Querier resolves arbitrary exact-match predicates against the
// authoritative store. It returns ErrNotFound when nothing matches and
// ErrMultipleRecords when more than one record does.
type Querier[T any] interface {
	Query(ctx context.Context, predicate Predicate) (T, error)
}

// BackingStore is the authoritative persistence layer.
type BackingStore[T any] interface {
	Querier[T]
	// Save persists record and returns it as stored, with any generated
	// values filled in.
	Save(ctx context.Context, record T) (T, error)
	Delete(ctx context.Context, record T) error
}

// Lister is implemented by backing stores able to enumerate every record of
// the type. It enables Store.Warm.
type Lister[T any] interface {
	All(ctx context.Context) ([]T, error)
}

// QuerierFunc adapts a function to the Querier interface.
type QuerierFunc[T any] func(ctx context.Context, predicate Predicate) (T, error)

func (f QuerierFunc[T]) Query(ctx context.Context, predicate Predicate) (T, error) {
	return f(ctx, predicate)
}
