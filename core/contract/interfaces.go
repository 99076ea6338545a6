package contract

import (
	"context"
	"time"
)

// Memory is the agent-facing store. Callers express intent, the manager
// maps intent to a tier and routes reads through the tier hierarchy.
type Memory interface {
	Remember(ctx context.Context, intent Intent, key string, value []byte, opts ...MemoryOption) error
	Recall(ctx context.Context, key string, opts ...MemoryOption) ([]byte, error)
	Forget(ctx context.Context, key string, opts ...MemoryOption) error

	// Sweep enforces expiry on tiers that need explicit retention passes.
	// Tiers with native TTLs treat it as a no-op, keeping the contract
	// uniform across backends.
	Sweep(ctx context.Context) error
}

// Router selects and invokes an inference target per request.
type Router interface {
	Decide(ctx context.Context, req Request) (RoutingDecision, error)
	Invoke(ctx context.Context, decision RoutingDecision, req Request) (Response, error)
}

// Coordinator drives multi-step sagas over the event log.
type Coordinator interface {
	Start(ctx context.Context, definitionName string, payload []byte) (string, error)
	OnEvent(ctx context.Context, event DomainEvent) error
}

// Publisher appends domain events to the ordered log, retrying transient
// failures with bounded backoff before surfacing ErrEventDeliveryFailed.
type Publisher interface {
	Publish(ctx context.Context, event DomainEvent) (DomainEvent, error)
}

// DomainAdapter is the narrow contract every domain collaborator
// (inventory, pricing, CRM, logistics) implements. The core never assumes
// adapter-specific fields beyond the opaque payload.
type DomainAdapter interface {
	Connect(ctx context.Context) error
	Fetch(ctx context.Context, query string) ([]byte, error)
	Upsert(ctx context.Context, payload []byte) error
	Delete(ctx context.Context, id string) error
}

// MemoryOption customizes a single memory call.
type MemoryOption func(*MemoryCallOptions)

// MemoryCallOptions is the resolved option set. TTL applies to ephemeral
// writes; Partition scopes durable reads/writes; Durable marks a read as
// durable-scoped so a missing partition fails fast instead of silently
// skipping the warm tier.
type MemoryCallOptions struct {
	TTL       time.Duration // 0 means the configured default
	Partition string
	Durable   bool
}

// WithTTL overrides the hot-tier TTL for one ephemeral write.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(o *MemoryCallOptions) {
		o.TTL = ttl
	}
}

// WithPartition supplies the partition hint required by every durable
// read and write.
func WithPartition(partition string) MemoryOption {
	return func(o *MemoryCallOptions) {
		o.Partition = partition
		o.Durable = true
	}
}

// WithDurableScope marks a recall as durable-scoped without naming a
// partition. Such a call fails with ErrMissingPartitionKey, which is the
// contract for durable reads that omit the hint.
func WithDurableScope() MemoryOption {
	return func(o *MemoryCallOptions) {
		o.Durable = true
	}
}

// ResolveMemoryOptions folds the option list into a MemoryCallOptions.
func ResolveMemoryOptions(opts []MemoryOption) MemoryCallOptions {
	var out MemoryCallOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}
