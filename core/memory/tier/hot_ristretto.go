package tier

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

// RistrettoHot is an in-process hot tier for single-instance and local
// development deployments. It honors TTLs but, being an admission-based
// cache, may evict entries early under memory pressure; that is acceptable
// for the hot tier, where a miss falls through to warm/cold.
type RistrettoHot struct {
	cache *ristretto.Cache
}

// NewRistrettoHot builds an in-process hot tier bounded to maxBytes.
func NewRistrettoHot(maxBytes int64) (*RistrettoHot, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &RistrettoHot{cache: cache}, nil
}

func (h *RistrettoHot) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := h.cache.Get(key)
	if !ok {
		return nil, contractx.ErrNotFound
	}
	value, ok := v.([]byte)
	if !ok {
		return nil, contractx.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (h *RistrettoHot) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: hot entries require a ttl", contractx.ErrValidation)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	h.cache.SetWithTTL(key, stored, int64(len(stored)), ttl)
	// Ristretto admits writes asynchronously; wait so a read-your-write
	// immediately after Set behaves like the Redis tier.
	h.cache.Wait()
	return nil
}

func (h *RistrettoHot) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.cache.Del(key)
	return nil
}

// Close stops the cache's internal goroutines.
func (h *RistrettoHot) Close() {
	h.cache.Close()
}
