// Package tier holds the concrete storage backends behind the memory
// manager. Each tier maps its driver errors onto the contract sentinels
// (contract.ErrNotFound, contract.ErrTierUnavailable) so the manager and
// its callers never see driver types.
package tier

import (
	"context"
	"time"
)

// Hot is the millisecond key-value cache tier. Entries always carry a TTL;
// the tier enforces expiry natively.
type Hot interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Warm is the replicated document tier. Every call is scoped to a
// partition; the tier never performs cross-partition scans.
type Warm interface {
	Get(ctx context.Context, partition, key string) ([]byte, error)
	Put(ctx context.Context, partition, key string, value []byte) error
	Delete(ctx context.Context, partition, key string) error

	// Sweep removes entries past their retention deadline. Backends with
	// native retention TTLs return nil without work.
	Sweep(ctx context.Context) error
}

// Cold is the immutable archival tier. Writes are content-addressed; a
// repeat Put of a logical key creates a new version and moves the latest
// pointer, it never mutates stored bytes.
type Cold interface {
	Put(ctx context.Context, key string, value []byte) (digest string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
