package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

// Mock is the in-process adapter variant for tests and local development.
// Payloads are stored opaquely; the only field the mock inspects is "id",
// which every domain payload carries for upsert/delete addressing.
type Mock struct {
	mu        sync.Mutex
	records   map[string][]byte
	connected bool
}

var _ contractx.DomainAdapter = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{records: make(map[string][]byte)}
}

func (m *Mock) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *Mock) Fetch(ctx context.Context, query string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.records[strings.TrimSpace(query)]
	if !ok {
		return nil, contractx.ErrNotFound
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func (m *Mock) Upsert(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := payloadID(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.records[id] = stored
	return nil
}

func (m *Mock) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, strings.TrimSpace(id))
	return nil
}

func payloadID(payload []byte) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", fmt.Errorf("%w: adapter payload is not json: %v", contractx.ErrValidation, err)
	}
	if strings.TrimSpace(probe.ID) == "" {
		return "", fmt.Errorf("%w: adapter payload has no id", contractx.ErrValidation)
	}
	return probe.ID, nil
}
