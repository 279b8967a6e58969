package hotstorage

import "context"

type bypassContextKey struct{}

// WithBypass marks ctx so that lookups made with it skip the cache and go
// straight to the backing store. Writes still synchronize the cache.
func WithBypass(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassContextKey{}, true)
}

func bypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(bypassContextKey{}).(bool)
	return v
}
