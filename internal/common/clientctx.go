package common

import "context"

type ctxKey string

const clientIDKey ctxKey = "client/id"

// WithClientID stores the browser client identifier on the provided context.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey, id)
}

// ClientID extracts the browser client identifier from the context if present.
func ClientID(ctx context.Context) (string, bool) {
	v := ctx.Value(clientIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
