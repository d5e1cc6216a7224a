// Package resultcache persists response bundles under opaque IDs so large
// result sets can be fetched after the synchronous response. Payloads are
// opaque JSON; the store never inspects them.
package resultcache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown or expired IDs.
var ErrNotFound = errors.New("result not found")

type Store interface {
	Put(ctx context.Context, id string, payload []byte, ttl time.Duration) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}
