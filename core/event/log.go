// Package event provides the ordered, partitioned, at-least-once domain
// event log. Ordering is guaranteed only within a partition key; sequence
// numbers are assigned per partition on append. Consumers must be
// idempotent.
package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

// Log is the append/read contract over the partitioned event log.
type Log interface {
	// Append stores the event and returns it with Timestamp and the
	// partition-scoped SequenceNo filled in.
	Append(ctx context.Context, event contractx.DomainEvent) (contractx.DomainEvent, error)

	// Read returns up to max events of a partition with SequenceNo >= from,
	// in sequence order.
	Read(ctx context.Context, partitionKey string, from uint64, max int) ([]contractx.DomainEvent, error)
}

// PublisherConfig tunes publish-side retry. An undelivered triggering
// event leaves a saga permanently pending, so appends are retried with
// bounded backoff before the error surfaces.
type PublisherConfig struct {
	MaxAttempts    int           `envconfig:"MAX_ATTEMPTS" split_words:"true" default:"3"`
	InitialBackoff time.Duration `envconfig:"INITIAL_BACKOFF" split_words:"true" default:"100ms"`
}

// Publisher wraps a Log with validation and bounded-backoff retry.
type Publisher struct {
	log Log
	cfg PublisherConfig
}

var _ contractx.Publisher = (*Publisher)(nil)

func NewPublisher(l Log, cfg PublisherConfig) (*Publisher, error) {
	if l == nil {
		return nil, errors.New("event log is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	return &Publisher{log: l, cfg: cfg}, nil
}

// Publish appends the event, retrying transient failures with doubling
// backoff up to MaxAttempts, then surfaces ErrEventDeliveryFailed.
func (p *Publisher) Publish(ctx context.Context, event contractx.DomainEvent) (contractx.DomainEvent, error) {
	if strings.TrimSpace(event.EventType) == "" {
		return contractx.DomainEvent{}, fmt.Errorf("%w: event type is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(event.PartitionKey) == "" {
		return contractx.DomainEvent{}, fmt.Errorf("%w: partition key is empty", contractx.ErrValidation)
	}

	backoff := p.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		appended, err := p.log.Append(ctx, event)
		if err == nil {
			log.Debug().
				Str("event_type", appended.EventType).
				Str("partition_key", appended.PartitionKey).
				Uint64("sequence_no", appended.SequenceNo).
				Msg("event published")
			return appended, nil
		}
		lastErr = err
		if attempt == p.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return contractx.DomainEvent{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return contractx.DomainEvent{}, fmt.Errorf("%w: %v", contractx.ErrEventDeliveryFailed, lastErr)
}
