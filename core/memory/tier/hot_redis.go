package tier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

const defaultHotKeyPrefix = "agentcore:hot:"

// RedisHotConfig configures the Redis-backed hot tier.
type RedisHotConfig struct {
	Addr     string        `envconfig:"ADDR" split_words:"true" required:"true"`
	Password string        `envconfig:"PASSWORD" split_words:"true"`
	DB       int           `envconfig:"DB" split_words:"true" default:"0"`
	Timeout  time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"2s"`
}

// RedisHot is the production hot tier.
type RedisHot struct {
	client    *redis.Client
	keyPrefix string
}

// RedisHotOption customizes RedisHot.
type RedisHotOption func(*RedisHot)

func WithRedisKeyPrefix(prefix string) RedisHotOption {
	return func(h *RedisHot) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			h.keyPrefix = trimmed
		}
	}
}

func NewRedisHot(cfg RedisHotConfig, opts ...RedisHotOption) (*RedisHot, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	h := &RedisHot{
		client: redis.NewClient(&redis.Options{
			Addr:         strings.TrimSpace(cfg.Addr),
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		}),
		keyPrefix: defaultHotKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

func (h *RedisHot) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := h.client.Get(ctx, h.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, contractx.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: hot get: %v", contractx.ErrTierUnavailable, err)
	}
	return val, nil
}

func (h *RedisHot) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: hot entries require a ttl", contractx.ErrValidation)
	}
	if err := h.client.Set(ctx, h.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: hot set: %v", contractx.ErrTierUnavailable, err)
	}
	return nil
}

func (h *RedisHot) Delete(ctx context.Context, key string) error {
	if err := h.client.Del(ctx, h.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: hot delete: %v", contractx.ErrTierUnavailable, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (h *RedisHot) Close() error {
	return h.client.Close()
}
