package event

import (
	"context"
	"sync"
	"time"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

// MemoryLog is an in-process Log for local development and tests. It keeps
// the same per-partition ordering and sequencing contract as the Redis
// implementation.
type MemoryLog struct {
	mu         sync.Mutex
	partitions map[string][]contractx.DomainEvent
	now        func() time.Time
}

var _ Log = (*MemoryLog)(nil)

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		partitions: make(map[string][]contractx.DomainEvent),
		now:        time.Now,
	}
}

func (l *MemoryLog) Append(ctx context.Context, event contractx.DomainEvent) (contractx.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return contractx.DomainEvent{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.partitions[event.PartitionKey]
	event.SequenceNo = uint64(len(events)) + 1
	event.Timestamp = l.now().UTC()
	l.partitions[event.PartitionKey] = append(events, event)
	return event, nil
}

func (l *MemoryLog) Read(ctx context.Context, partitionKey string, from uint64, max int) ([]contractx.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var out []contractx.DomainEvent
	for _, ev := range l.partitions[partitionKey] {
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
