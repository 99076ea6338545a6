package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/retailmesh/agentcore/core/contract"
	eventx "github.com/retailmesh/agentcore/core/event"
)

// fakeMemory implements contract.Memory over two maps, mirroring the
// manager's durable/archival routing closely enough for coordinator tests.
type fakeMemory struct {
	mu      sync.Mutex
	durable map[string][]byte
	cold    map[string][]byte
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{
		durable: make(map[string][]byte),
		cold:    make(map[string][]byte),
	}
}

func (f *fakeMemory) Remember(ctx context.Context, intent contractx.Intent, key string, value []byte, opts ...contractx.MemoryOption) error {
	o := contractx.ResolveMemoryOptions(opts)
	f.mu.Lock()
	defer f.mu.Unlock()
	switch intent {
	case contractx.IntentDurable:
		if o.Partition == "" {
			return contractx.ErrMissingPartitionKey
		}
		f.durable[o.Partition+"/"+key] = value
	case contractx.IntentArchival:
		f.cold[key] = value
	case contractx.IntentEphemeral:
		// coordinator never writes ephemeral state
	}
	return nil
}

func (f *fakeMemory) Recall(ctx context.Context, key string, opts ...contractx.MemoryOption) ([]byte, error) {
	o := contractx.ResolveMemoryOptions(opts)
	if o.Durable && o.Partition == "" {
		return nil, contractx.ErrMissingPartitionKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.Partition != "" {
		if v, ok := f.durable[o.Partition+"/"+key]; ok {
			return v, nil
		}
	}
	if v, ok := f.cold[key]; ok {
		return v, nil
	}
	return nil, contractx.ErrNotFound
}

func (f *fakeMemory) Forget(ctx context.Context, key string, opts ...contractx.MemoryOption) error {
	o := contractx.ResolveMemoryOptions(opts)
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.Partition != "" {
		delete(f.durable, o.Partition+"/"+key)
	}
	delete(f.cold, key)
	return nil
}

func (f *fakeMemory) Sweep(ctx context.Context) error { return nil }

func (f *fakeMemory) instance(t *testing.T, sagaID string) *contractx.SagaInstance {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.durable[sagaID+"/"+sagaKeyPrefix+sagaID]
	if !ok {
		raw, ok = f.cold[archiveKeyPrefix+sagaID]
	}
	if !ok {
		t.Fatalf("saga %s not persisted anywhere", sagaID)
	}
	var inst contractx.SagaInstance
	if err := json.Unmarshal(raw, &inst); err != nil {
		t.Fatalf("unmarshal instance: %v", err)
	}
	return &inst
}

func (f *fakeMemory) archived(sagaID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, inCold := f.cold[archiveKeyPrefix+sagaID]
	_, inWarm := f.durable[sagaID+"/"+sagaKeyPrefix+sagaID]
	return inCold && !inWarm
}

type failingLog struct{}

func (failingLog) Append(ctx context.Context, ev contractx.DomainEvent) (contractx.DomainEvent, error) {
	return contractx.DomainEvent{}, fmt.Errorf("broker down")
}

func (failingLog) Read(ctx context.Context, partitionKey string, from uint64, max int) ([]contractx.DomainEvent, error) {
	return nil, nil
}

type fixture struct {
	mem   *fakeMemory
	log   *eventx.MemoryLog
	coord *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := newFakeMemory()
	memlog := eventx.NewMemoryLog()
	pub, err := eventx.NewPublisher(memlog, eventx.PublisherConfig{MaxAttempts: 1, InitialBackoff: 1})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	reg, err := NewRegistry(BuiltinDefinitions()...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	coord, err := NewCoordinator(mem, pub, reg, Config{StepTimeout: time.Minute})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return &fixture{mem: mem, log: memlog, coord: coord}
}

func (fx *fixture) events(t *testing.T, partition string) []contractx.DomainEvent {
	t.Helper()
	events, err := fx.log.Read(context.Background(), partition, 0, 0)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return events
}

func (fx *fixture) eventTypes(t *testing.T, partition string) []string {
	t.Helper()
	var types []string
	for _, ev := range fx.events(t, partition) {
		types = append(types, ev.EventType)
	}
	return types
}

func (fx *fixture) deliver(t *testing.T, sagaID, eventType string) {
	t.Helper()
	err := fx.coord.OnEvent(context.Background(), contractx.DomainEvent{
		EventType:    eventType,
		SagaID:       sagaID,
		PartitionKey: sagaID,
	})
	if err != nil {
		t.Fatalf("on_event %s: %v", eventType, err)
	}
}

func TestStartPublishesTriggerAndMovesInProgress(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	sagaID, err := fx.coord.Start(context.Background(), "order_fulfillment", []byte(`{"order_id":"ORD-1"}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	inst := fx.mem.instance(t, sagaID)
	if inst.Status != contractx.SagaInProgress {
		t.Fatalf("expected in_progress, got %s", inst.Status)
	}
	if inst.CurrentStep != 0 || len(inst.Steps) != 3 {
		t.Fatalf("unexpected step layout: %+v", inst)
	}
	if inst.StepDeadline.IsZero() {
		t.Fatal("expected a step deadline")
	}

	types := fx.eventTypes(t, sagaID)
	if len(types) != 1 || types[0] != "order.created" {
		t.Fatalf("unexpected published events: %v", types)
	}
}

func TestAllStepsCompleteSagaCompletesAndArchives(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	sagaID, err := fx.coord.Start(context.Background(), "order_fulfillment", []byte(`{"order_id":"ORD-1"}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	fx.deliver(t, sagaID, "payment.completed")
	fx.deliver(t, sagaID, "inventory.reserved")
	fx.deliver(t, sagaID, "shipment.dispatched")

	inst := fx.mem.instance(t, sagaID)
	if inst.Status != contractx.SagaCompleted {
		t.Fatalf("expected completed, got %s", inst.Status)
	}
	for _, step := range inst.Steps {
		if step.Status != contractx.StepDone {
			t.Fatalf("step %s not done: %s", step.Name, step.Status)
		}
	}
	if !fx.mem.archived(sagaID) {
		t.Fatal("terminal saga must be archived to cold and dropped from warm")
	}

	want := []string{"order.created", "inventory.reserve", "shipment.dispatch"}
	got := fx.eventTypes(t, sagaID)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected event sequence: %v", got)
	}
}

func TestStepFailureCompensatesDoneStepsInReverseOrder(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	sagaID, err := fx.coord.Start(context.Background(), "order_fulfillment", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	fx.deliver(t, sagaID, "payment.completed")
	fx.deliver(t, sagaID, "inventory.reserved")
	fx.deliver(t, sagaID, "shipment.failed")

	inst := fx.mem.instance(t, sagaID)
	if inst.Status != contractx.SagaFailed {
		t.Fatalf("expected failed, got %s", inst.Status)
	}
	if inst.Steps[2].Status != contractx.StepFailed {
		t.Fatalf("shipping step should be failed: %+v", inst.Steps[2])
	}

	types := fx.eventTypes(t, sagaID)
	// Compensations for inventory then payment, strictly reverse.
	tail := types[len(types)-2:]
	if tail[0] != "inventory.release" || tail[1] != "payment.refund" {
		t.Fatalf("compensations out of order: %v", types)
	}
}

func TestExampleScenarioSingleCompensation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	sagaID, err := fx.coord.Start(context.Background(), "order_fulfillment", []byte(`{"order_id":"ORD-1"}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	fx.deliver(t, sagaID, "payment.completed")
	fx.deliver(t, sagaID, "inventory.failed")

	inst := fx.mem.instance(t, sagaID)
	if inst.Status != contractx.SagaFailed {
		t.Fatalf("expected failed, got %s", inst.Status)
	}

	var compensations []string
	for _, typ := range fx.eventTypes(t, sagaID) {
		if typ == "payment.refund" || typ == "inventory.release" {
			compensations = append(compensations, typ)
		}
	}
	if len(compensations) != 1 || compensations[0] != "payment.refund" {
		t.Fatalf("expected exactly one compensation (payment.refund), got %v", compensations)
	}
	// Shipping never ran; it must not be compensated or marked.
	if inst.Steps[2].Status != contractx.StepPending {
		t.Fatalf("unstarted step was touched: %+v", inst.Steps[2])
	}
}

func TestDuplicateCompletionEventIsNoOp(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	sagaID, err := fx.coord.Start(context.Background(), "order_fulfillment", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	fx.deliver(t, sagaID, "payment.completed")
	before := len(fx.events(t, sagaID))
	beforeInst := fx.mem.instance(t, sagaID)

	fx.deliver(t, sagaID, "payment.completed")

	after := len(fx.events(t, sagaID))
	afterInst := fx.mem.instance(t, sagaID)
	if before != after {
		t.Fatalf("duplicate delivery published events: %d -> %d", before, after)
	}
	if beforeInst.CurrentStep != afterInst.CurrentStep || beforeInst.Version != afterInst.Version {
		t.Fatalf("duplicate delivery mutated state: %+v vs %+v", beforeInst, afterInst)
	}
}

func TestEventAfterTerminalIsNoOp(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	sagaID, err := fx.coord.Start(context.Background(), "order_fulfillment", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.deliver(t, sagaID, "payment.completed")
	fx.deliver(t, sagaID, "inventory.failed")

	// Redelivery long after archival.
	fx.deliver(t, sagaID, "inventory.failed")

	inst := fx.mem.instance(t, sagaID)
	if inst.Status != contractx.SagaFailed {
		t.Fatalf("terminal status changed: %s", inst.Status)
	}
}

func TestStepTimeoutDrivesCompensation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	current := time.Now().UTC()
	fx.coord.now = func() time.Time { return current }

	sagaID, err := fx.coord.Start(context.Background(), "order_fulfillment", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.deliver(t, sagaID, "payment.completed")

	current = current.Add(2 * time.Minute)
	if err := fx.coord.SweepTimeouts(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	inst := fx.mem.instance(t, sagaID)
	if inst.Status != contractx.SagaFailed {
		t.Fatalf("expected failed after timeout, got %s", inst.Status)
	}
	if !strings.Contains(inst.Steps[1].Error, "deadline") {
		t.Fatalf("timeout cause not recorded: %+v", inst.Steps[1])
	}

	types := fx.eventTypes(t, sagaID)
	if types[len(types)-1] != "payment.refund" {
		t.Fatalf("expected payment.refund compensation, got %v", types)
	}
}

func TestSweepLeavesHealthySagasAlone(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	sagaID, err := fx.coord.Start(context.Background(), "order_fulfillment", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := fx.coord.SweepTimeouts(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	inst := fx.mem.instance(t, sagaID)
	if inst.Status != contractx.SagaInProgress {
		t.Fatalf("healthy saga disturbed: %s", inst.Status)
	}
}

func TestStartUnknownDefinitionFails(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	if _, err := fx.coord.Start(context.Background(), "nonexistent", nil); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStartPublishFailureLeavesSagaPending(t *testing.T) {
	t.Parallel()

	mem := newFakeMemory()
	pub, err := eventx.NewPublisher(failingLog{}, eventx.PublisherConfig{MaxAttempts: 2, InitialBackoff: 1})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	reg, err := NewRegistry(BuiltinDefinitions()...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	coord, err := NewCoordinator(mem, pub, reg, Config{})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	_, err = coord.Start(context.Background(), "order_fulfillment", nil)
	if !errors.Is(err, contractx.ErrEventDeliveryFailed) {
		t.Fatalf("expected ErrEventDeliveryFailed, got %v", err)
	}

	mem.mu.Lock()
	var pendingSeen bool
	for key, raw := range mem.durable {
		if key == indexPartition+"/"+indexKey {
			continue
		}
		var inst contractx.SagaInstance
		if err := json.Unmarshal(raw, &inst); err == nil && inst.Status == contractx.SagaPending {
			pendingSeen = true
		}
	}
	mem.mu.Unlock()
	if !pendingSeen {
		t.Fatal("expected the saga to remain pending after delivery failure")
	}
}

func TestConcurrentEventsForDifferentSagas(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 8; i++ {
		id, err := fx.coord.Start(ctx, "order_fulfillment", nil)
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(sagaID string) {
			defer wg.Done()
			for _, typ := range []string{"payment.completed", "inventory.reserved", "shipment.dispatched"} {
				_ = fx.coord.OnEvent(ctx, contractx.DomainEvent{EventType: typ, SagaID: sagaID, PartitionKey: sagaID})
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		inst := fx.mem.instance(t, id)
		if inst.Status != contractx.SagaCompleted {
			t.Fatalf("saga %s not completed: %s", id, inst.Status)
		}
	}
}
