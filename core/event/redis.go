package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

const (
	streamKeyPrefix = "agentcore:events:"
	seqKeyPrefix    = "agentcore:evseq:"
)

// RedisLogConfig configures the Redis Streams event log.
type RedisLogConfig struct {
	Addr     string        `envconfig:"ADDR" split_words:"true" required:"true"`
	Password string        `envconfig:"PASSWORD" split_words:"true"`
	DB       int           `envconfig:"DB" split_words:"true" default:"0"`
	Timeout  time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"2s"`
}

// RedisLog stores each partition as its own stream. A per-partition INCR
// counter assigns the monotonic sequence number; single-stream append
// order gives the ordering guarantee within a partition.
type RedisLog struct {
	client *redis.Client
	now    func() time.Time
}

var _ Log = (*RedisLog)(nil)

func NewRedisLog(cfg RedisLogConfig) (*RedisLog, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisLog{
		client: redis.NewClient(&redis.Options{
			Addr:         strings.TrimSpace(cfg.Addr),
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		}),
		now: time.Now,
	}, nil
}

func (l *RedisLog) Append(ctx context.Context, event contractx.DomainEvent) (contractx.DomainEvent, error) {
	seq, err := l.client.Incr(ctx, seqKeyPrefix+event.PartitionKey).Result()
	if err != nil {
		return contractx.DomainEvent{}, fmt.Errorf("assign sequence: %w", err)
	}
	event.SequenceNo = uint64(seq)
	event.Timestamp = l.now().UTC()

	_, err = l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKeyPrefix + event.PartitionKey,
		Values: map[string]interface{}{
			"event_type":  event.EventType,
			"saga_id":     event.SagaID,
			"payload":     string(event.Payload),
			"timestamp":   event.Timestamp.Format(time.RFC3339Nano),
			"sequence_no": strconv.FormatUint(event.SequenceNo, 10),
		},
	}).Result()
	if err != nil {
		return contractx.DomainEvent{}, fmt.Errorf("append event: %w", err)
	}
	return event, nil
}

func (l *RedisLog) Read(ctx context.Context, partitionKey string, from uint64, max int) ([]contractx.DomainEvent, error) {
	entries, err := l.client.XRange(ctx, streamKeyPrefix+partitionKey, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read partition %s: %w", partitionKey, err)
	}

	var out []contractx.DomainEvent
	for _, entry := range entries {
		ev, err := decodeEntry(partitionKey, entry.Values)
		if err != nil {
			return nil, err
		}
		if ev.SequenceNo < from {
			continue
		}
		out = append(out, ev)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}

func decodeEntry(partitionKey string, values map[string]interface{}) (contractx.DomainEvent, error) {
	ev := contractx.DomainEvent{PartitionKey: partitionKey}

	ev.EventType = stringField(values, "event_type")
	ev.SagaID = stringField(values, "saga_id")
	ev.Payload = []byte(stringField(values, "payload"))

	seq, err := strconv.ParseUint(stringField(values, "sequence_no"), 10, 64)
	if err != nil {
		return contractx.DomainEvent{}, fmt.Errorf("decode sequence_no: %w", err)
	}
	ev.SequenceNo = seq

	ts, err := time.Parse(time.RFC3339Nano, stringField(values, "timestamp"))
	if err != nil {
		return contractx.DomainEvent{}, fmt.Errorf("decode timestamp: %w", err)
	}
	ev.Timestamp = ts

	return ev, nil
}

func stringField(values map[string]interface{}, key string) string {
	if v, ok := values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Close releases the underlying connection pool.
func (l *RedisLog) Close() error {
	return l.client.Close()
}
