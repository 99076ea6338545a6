// Package memory implements the tiered memory manager. Callers express
// intent (ephemeral, durable, archival); the manager maps intent to the
// hot, warm, or cold tier and routes recalls through the hierarchy with
// opportunistic read-through promotion.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/retailmesh/agentcore/core/contract"
	tierx "github.com/retailmesh/agentcore/core/memory/tier"
)

const transientRetryBackoff = 50 * time.Millisecond

// Config is the manager's tunable surface.
type Config struct {
	HotDefaultTTL      time.Duration `envconfig:"HOT_DEFAULT_TTL" split_words:"true" default:"300s"`
	HotMaxPayloadBytes int           `envconfig:"HOT_MAX_PAYLOAD_BYTES" split_words:"true" default:"131072"`
	PromotionTTL       time.Duration `envconfig:"PROMOTION_TTL" split_words:"true" default:"60s"`
}

func (c Config) withDefaults() Config {
	if c.HotDefaultTTL <= 0 {
		c.HotDefaultTTL = 5 * time.Minute
	}
	if c.HotMaxPayloadBytes <= 0 {
		c.HotMaxPayloadBytes = 128 << 10
	}
	if c.PromotionTTL <= 0 {
		c.PromotionTTL = time.Minute
	}
	return c
}

// Manager is the sole writer to all three tiers.
type Manager struct {
	hot  tierx.Hot
	warm tierx.Warm
	cold tierx.Cold
	cfg  Config
}

var _ contractx.Memory = (*Manager)(nil)

func NewManager(hot tierx.Hot, warm tierx.Warm, cold tierx.Cold, cfg Config) (*Manager, error) {
	if hot == nil {
		return nil, errors.New("hot tier is required")
	}
	if warm == nil {
		return nil, errors.New("warm tier is required")
	}
	if cold == nil {
		return nil, errors.New("cold tier is required")
	}
	return &Manager{
		hot:  hot,
		warm: warm,
		cold: cold,
		cfg:  cfg.withDefaults(),
	}, nil
}

// Remember writes value under key according to intent. Ephemeral writes
// land in hot with a TTL, durable writes require a partition hint, and
// archival writes become immutable content-addressed blobs. Durable and
// archival writes drop any promoted hot copy of the key so recalls never
// see a superseded value.
func (m *Manager) Remember(ctx context.Context, intent contractx.Intent, key string, value []byte, opts ...contractx.MemoryOption) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key is empty", contractx.ErrValidation)
	}
	o := contractx.ResolveMemoryOptions(opts)

	switch intent {
	case contractx.IntentEphemeral:
		if len(value) > m.cfg.HotMaxPayloadBytes {
			return fmt.Errorf("%w: %d bytes exceeds limit %d", contractx.ErrPayloadTooLarge, len(value), m.cfg.HotMaxPayloadBytes)
		}
		ttl := o.TTL
		if ttl <= 0 {
			ttl = m.cfg.HotDefaultTTL
		}
		return m.retryTransient(ctx, func() error {
			return m.hot.Set(ctx, key, value, ttl)
		})

	case contractx.IntentDurable:
		if strings.TrimSpace(o.Partition) == "" {
			return contractx.ErrMissingPartitionKey
		}
		if err := m.retryTransient(ctx, func() error {
			return m.warm.Put(ctx, o.Partition, key, value)
		}); err != nil {
			return err
		}
		m.invalidateHot(ctx, key)
		return nil

	case contractx.IntentArchival:
		if err := m.retryTransient(ctx, func() error {
			_, err := m.cold.Put(ctx, key, value)
			return err
		}); err != nil {
			return err
		}
		m.invalidateHot(ctx, key)
		return nil

	default:
		return fmt.Errorf("%w: unknown intent %q", contractx.ErrValidation, intent)
	}
}

// Recall checks hot first, then warm (when a partition is supplied), then
// cold, promoting a warm/cold hit into hot with a short TTL. A hot-tier
// outage degrades to direct warm/cold reads; a warm outage surfaces as
// ErrTierUnavailable rather than silently skipping durable data.
func (m *Manager) Recall(ctx context.Context, key string, opts ...contractx.MemoryOption) ([]byte, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: key is empty", contractx.ErrValidation)
	}
	o := contractx.ResolveMemoryOptions(opts)
	if o.Durable && strings.TrimSpace(o.Partition) == "" {
		return nil, contractx.ErrMissingPartitionKey
	}

	value, err := m.hot.Get(ctx, key)
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, contractx.ErrNotFound):
		// fall through
	case errors.Is(err, contractx.ErrTierUnavailable):
		log.Warn().Str("key", key).Msg("hot tier unavailable, degrading to warm/cold read")
	default:
		return nil, err
	}

	if strings.TrimSpace(o.Partition) != "" {
		var warmValue []byte
		err := m.retryTransient(ctx, func() error {
			var getErr error
			warmValue, getErr = m.warm.Get(ctx, o.Partition, key)
			return getErr
		})
		switch {
		case err == nil:
			m.promote(ctx, key, warmValue)
			return warmValue, nil
		case errors.Is(err, contractx.ErrNotFound):
			// fall through
		default:
			return nil, err
		}
	}

	var coldValue []byte
	err = m.retryTransient(ctx, func() error {
		var getErr error
		coldValue, getErr = m.cold.Get(ctx, key)
		return getErr
	})
	if err != nil {
		return nil, err
	}
	m.promote(ctx, key, coldValue)
	return coldValue, nil
}

// Forget removes key from every tier it may live in.
func (m *Manager) Forget(ctx context.Context, key string, opts ...contractx.MemoryOption) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key is empty", contractx.ErrValidation)
	}
	o := contractx.ResolveMemoryOptions(opts)
	if o.Durable && strings.TrimSpace(o.Partition) == "" {
		return contractx.ErrMissingPartitionKey
	}

	var errs []error
	if err := m.hot.Delete(ctx, key); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(o.Partition) != "" {
		if err := m.warm.Delete(ctx, o.Partition, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.cold.Delete(ctx, key); err != nil && !errors.Is(err, contractx.ErrNotFound) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Sweep runs explicit expiry enforcement on tiers that need it. Tiers with
// native TTLs make this a no-op.
func (m *Manager) Sweep(ctx context.Context) error {
	return m.warm.Sweep(ctx)
}

// promote writes a warm/cold hit into hot with a short TTL. Best effort:
// promotion failure never fails the read, and oversized payloads stay out
// of hot entirely.
func (m *Manager) promote(ctx context.Context, key string, value []byte) {
	if len(value) > m.cfg.HotMaxPayloadBytes {
		return
	}
	if err := m.hot.Set(ctx, key, value, m.cfg.PromotionTTL); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("read-through promotion skipped")
	}
}

// invalidateHot drops any read-through copy of key so the next recall
// sees the write that just landed in warm or cold rather than a stale
// promotion.
func (m *Manager) invalidateHot(ctx context.Context, key string) {
	if err := m.hot.Delete(ctx, key); err != nil && !errors.Is(err, contractx.ErrNotFound) {
		log.Warn().Err(err).Str("key", key).Msg("hot invalidation failed, promoted copy may linger until ttl")
	}
}

// retryTransient retries fn exactly once after a short backoff when it
// fails with a transient tier outage. Anything beyond one retry is the
// caller's policy.
func (m *Manager) retryTransient(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, contractx.ErrTierUnavailable) {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(transientRetryBackoff):
	}
	return fn()
}
