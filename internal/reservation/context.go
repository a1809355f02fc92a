package reservation

import "context"

type contextKey string

const (
	idempotencyKey contextKey = "idempotencyKey"
	durableKey     contextKey = "durableWrites"
)

func NewContextWithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey, key)
}

func IdempotencyKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey).(string)

	return key, ok && key != ""
}

// NewContextWithDurableWrites marks ctx so that stores must fail rather than
// answer from a non-durable fallback.
func NewContextWithDurableWrites(ctx context.Context) context.Context {
	return context.WithValue(ctx, durableKey, true)
}

func DurableWritesFromContext(ctx context.Context) bool {
	durable, _ := ctx.Value(durableKey).(bool)

	return durable
}
