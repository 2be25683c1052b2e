// Package state persists what a browser client would keep locally: session, cart,
// pending payments and preferences. Values are JSON documents in Redis, one key per
// logical entry, namespaced per client.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys persisted per client (or globally for administrator settings).
const (
	KeyToken           = "token"
	KeyUser            = "user"
	KeyCart            = "cart"
	KeyTheme           = "theme"
	KeyMarkupSettings  = "markupSettings"
	KeyCustomPrices    = "customPrices"
	KeyPendingRef      = "pending_payment_ref"
	KeyPendingAmount   = "pending_payment_amount"
	KeyPendingPurchase = "pending_purchase"
)

const globalNamespace = "global"

var (
	// ErrNoClient is returned when a scope is requested without a client identifier.
	ErrNoClient = errors.New("state: client id is required")
	// ErrCorrupt wraps values that exist but cannot be decoded.
	ErrCorrupt = errors.New("state: corrupt value")
)

// Store wraps the Redis client shared by all scopes.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore constructs a store. A zero ttl keeps client entries forever.
func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "bundlehub"
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Client returns the scope for one browser client.
func (s *Store) Client(clientID string) (Scope, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return Scope{}, ErrNoClient
	}
	return Scope{store: s, namespace: "client:" + clientID, ttl: s.ttl}, nil
}

// Global returns the scope holding process-wide administrator settings. Entries never expire.
func (s *Store) Global() Scope {
	return Scope{store: s, namespace: globalNamespace}
}

// Scope reads and writes keys of a single namespace.
type Scope struct {
	store     *Store
	namespace string
	ttl       time.Duration
}

// Namespace reports the scope namespace, useful for logs and lock keys.
func (sc Scope) Namespace() string { return sc.namespace }

// Valid reports whether the scope is bound to a store.
func (sc Scope) Valid() bool { return sc.store != nil && sc.store.client != nil }

func (sc Scope) key(name string) string {
	return sc.store.prefix + ":" + sc.namespace + ":" + name
}

// GetJSON unmarshals the stored JSON value into dst. It reports whether the key existed.
func (sc Scope) GetJSON(ctx context.Context, name string, dst any) (bool, error) {
	if !sc.Valid() || name == "" {
		return false, nil
	}
	data, err := sc.store.client.Get(ctx, sc.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it under name.
func (sc Scope) SetJSON(ctx context.Context, name string, v any) error {
	if !sc.Valid() || name == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sc.store.client.Set(ctx, sc.key(name), data, sc.ttl).Err()
}

// GetString returns a raw string value.
func (sc Scope) GetString(ctx context.Context, name string) (string, bool, error) {
	if !sc.Valid() || name == "" {
		return "", false, nil
	}
	val, err := sc.store.client.Get(ctx, sc.key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

// SetString stores a raw string value.
func (sc Scope) SetString(ctx context.Context, name, value string) error {
	if !sc.Valid() || name == "" {
		return nil
	}
	return sc.store.client.Set(ctx, sc.key(name), value, sc.ttl).Err()
}

// SetMany writes several raw values atomically.
func (sc Scope) SetMany(ctx context.Context, values map[string]string) error {
	if !sc.Valid() || len(values) == 0 {
		return nil
	}
	pipe := sc.store.client.TxPipeline()
	for name, value := range values {
		pipe.Set(ctx, sc.key(name), value, sc.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes the named keys.
func (sc Scope) Delete(ctx context.Context, names ...string) error {
	if !sc.Valid() || len(names) == 0 {
		return nil
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if name != "" {
			keys = append(keys, sc.key(name))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return sc.store.client.Del(ctx, keys...).Err()
}

type scopeKey struct{}

// WithScope stores the client scope of the current request on ctx.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext returns the client scope stored by WithScope.
func FromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	return scope, ok && scope.Valid()
}
