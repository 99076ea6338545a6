// Package saga coordinates multi-step, cross-service workflows over the
// domain event log. Saga state lives in the durable memory tier, keyed and
// partitioned by saga ID, so any coordinator instance can pick up any
// saga. All of a saga's events share its ID as partition key, which makes
// the log's single-partition ordering guarantee sufficient to keep step
// transitions monotonic.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

const (
	sagaKeyPrefix    = "saga:"
	archiveKeyPrefix = "saga:archive:"
	indexKey         = "saga:index"
	indexPartition   = "saga-index"
)

// Config is the coordinator's tunable surface.
type Config struct {
	StepTimeout time.Duration `envconfig:"STEP_TIMEOUT" split_words:"true" default:"30s"`
}

// Coordinator drives saga instances. Calls for different sagas proceed in
// parallel; calls for the same saga are serialized by a per-saga lock,
// with an optimistic version check on save as the cross-process backstop.
type Coordinator struct {
	mem contractx.Memory
	pub contractx.Publisher
	reg *Registry
	cfg Config

	locks   sync.Map // saga id -> *sync.Mutex
	indexMu sync.Mutex

	now   func() time.Time
	newID func() string
}

var _ contractx.Coordinator = (*Coordinator)(nil)

func NewCoordinator(mem contractx.Memory, pub contractx.Publisher, reg *Registry, cfg Config) (*Coordinator, error) {
	if mem == nil {
		return nil, errors.New("memory manager is required")
	}
	if pub == nil {
		return nil, errors.New("event publisher is required")
	}
	if reg == nil {
		return nil, errors.New("definition registry is required")
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	return &Coordinator{
		mem:   mem,
		pub:   pub,
		reg:   reg,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

// Start creates a saga instance, persists it, publishes the definition's
// trigger event, and moves the instance to in-progress. A trigger that
// cannot be delivered leaves the saga pending and surfaces the publish
// error to the caller.
func (c *Coordinator) Start(ctx context.Context, definitionName string, payload []byte) (string, error) {
	def, ok := c.reg.Get(definitionName)
	if !ok {
		return "", fmt.Errorf("%w: unknown saga definition %q", contractx.ErrValidation, definitionName)
	}

	sagaID := c.newID()
	now := c.now().UTC()

	steps := make([]contractx.StepRecord, len(def.Steps))
	for i, sd := range def.Steps {
		steps[i] = contractx.StepRecord{
			Name:             sd.Name,
			Status:           contractx.StepPending,
			CompensationName: sd.CompensationEvent,
		}
	}
	inst := &contractx.SagaInstance{
		SagaID:         sagaID,
		DefinitionName: def.Name,
		Payload:        payload,
		Steps:          steps,
		Status:         contractx.SagaPending,
		Version:        0,
		StartedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.save(ctx, inst); err != nil {
		return "", err
	}
	if err := c.indexAdd(ctx, sagaID); err != nil {
		return "", err
	}

	if _, err := c.pub.Publish(ctx, contractx.DomainEvent{
		EventType:    def.TriggerEvent,
		SagaID:       sagaID,
		PartitionKey: sagaID,
		Payload:      payload,
	}); err != nil {
		// Saga stays pending; the caller may retry Start or give up.
		return "", err
	}

	inst.Status = contractx.SagaInProgress
	inst.StepDeadline = c.now().UTC().Add(c.stepTimeout(def, 0))
	if err := c.save(ctx, inst); err != nil {
		return "", err
	}

	log.Info().
		Str("saga_id", sagaID).
		Str("definition", def.Name).
		Msg("saga started")
	return sagaID, nil
}

// OnEvent applies one domain event to its saga. Safe under at-least-once
// delivery: a completion event for a step that is already done is a no-op.
func (c *Coordinator) OnEvent(ctx context.Context, event contractx.DomainEvent) error {
	if event.SagaID == "" {
		log.Debug().Str("event_type", event.EventType).Msg("event without saga id ignored")
		return nil
	}

	mu := c.lockFor(event.SagaID)
	mu.Lock()
	defer mu.Unlock()

	err := c.applyEvent(ctx, event)
	if errors.Is(err, contractx.ErrVersionConflict) {
		// Lost a cross-process race; the reload inside applyEvent picks up
		// the winner's state.
		err = c.applyEvent(ctx, event)
	}
	return err
}

func (c *Coordinator) applyEvent(ctx context.Context, event contractx.DomainEvent) error {
	inst, err := c.load(ctx, event.SagaID)
	if err != nil {
		return err
	}
	if inst.Terminal() {
		// Redelivery after archival.
		return nil
	}

	def, ok := c.reg.Get(inst.DefinitionName)
	if !ok {
		return fmt.Errorf("%w: instance %s references unknown definition %q", contractx.ErrValidation, inst.SagaID, inst.DefinitionName)
	}

	if inst.Status != contractx.SagaInProgress {
		log.Warn().
			Str("saga_id", inst.SagaID).
			Str("status", string(inst.Status)).
			Str("event_type", event.EventType).
			Msg("event for saga not in progress ignored")
		return nil
	}

	// Idempotency: completion of an already-done step is a no-op.
	for i := 0; i < inst.CurrentStep && i < len(def.Steps); i++ {
		if event.EventType == def.Steps[i].CompletionEvent && inst.Steps[i].Status == contractx.StepDone {
			return nil
		}
	}

	stepIdx := inst.CurrentStep
	if stepIdx >= len(def.Steps) {
		return nil
	}
	step := def.Steps[stepIdx]

	switch event.EventType {
	case step.CompletionEvent:
		return c.advance(ctx, inst, def, stepIdx)
	case step.FailureEvent:
		return c.compensate(ctx, inst, def, stepIdx, fmt.Sprintf("%v: %s", contractx.ErrSagaStepFailed, event.EventType))
	default:
		log.Debug().
			Str("saga_id", inst.SagaID).
			Str("event_type", event.EventType).
			Str("expected", step.CompletionEvent).
			Msg("event does not match expected step, ignored")
		return nil
	}
}

func (c *Coordinator) advance(ctx context.Context, inst *contractx.SagaInstance, def Definition, stepIdx int) error {
	inst.Steps[stepIdx].Status = contractx.StepDone
	inst.CurrentStep = stepIdx + 1

	if inst.CurrentStep == len(def.Steps) {
		inst.Status = contractx.SagaCompleted
		inst.StepDeadline = time.Time{}
		if err := c.save(ctx, inst); err != nil {
			return err
		}
		log.Info().Str("saga_id", inst.SagaID).Msg("saga completed")
		return c.archive(ctx, inst)
	}

	next := def.Steps[inst.CurrentStep]
	inst.StepDeadline = c.now().UTC().Add(c.stepTimeout(def, inst.CurrentStep))
	if err := c.save(ctx, inst); err != nil {
		return err
	}

	if next.RequestEvent != "" {
		if _, err := c.pub.Publish(ctx, contractx.DomainEvent{
			EventType:    next.RequestEvent,
			SagaID:       inst.SagaID,
			PartitionKey: inst.SagaID,
			Payload:      inst.Payload,
		}); err != nil {
			return err
		}
	}
	return nil
}

// compensate marks the current step failed and publishes compensation
// events for every already-done step in strict reverse order, then
// finalizes the saga as failed. A compensation that cannot be published is
// recorded against its step and stops the rollback for operator
// intervention; there is no compensation of compensations.
func (c *Coordinator) compensate(ctx context.Context, inst *contractx.SagaInstance, def Definition, stepIdx int, cause string) error {
	inst.Steps[stepIdx].Status = contractx.StepFailed
	inst.Steps[stepIdx].Error = cause
	inst.Status = contractx.SagaCompensating
	inst.StepDeadline = time.Time{}
	if err := c.save(ctx, inst); err != nil {
		return err
	}

	for i := stepIdx - 1; i >= 0; i-- {
		if inst.Steps[i].Status != contractx.StepDone || inst.Steps[i].CompensationName == "" {
			continue
		}
		if _, err := c.pub.Publish(ctx, contractx.DomainEvent{
			EventType:    inst.Steps[i].CompensationName,
			SagaID:       inst.SagaID,
			PartitionKey: inst.SagaID,
			Payload:      inst.Payload,
		}); err != nil {
			inst.Steps[i].Error = fmt.Sprintf("compensation %s: %v", inst.Steps[i].CompensationName, err)
			log.Error().
				Str("saga_id", inst.SagaID).
				Str("step", inst.Steps[i].Name).
				Err(err).
				Msg("compensation delivery failed, manual intervention required")
			break
		}
	}

	inst.Status = contractx.SagaFailed
	if err := c.save(ctx, inst); err != nil {
		return err
	}
	log.Warn().
		Str("saga_id", inst.SagaID).
		Str("cause", cause).
		Msg("saga failed")
	return c.archive(ctx, inst)
}

// SweepTimeouts treats every in-flight saga whose step deadline has passed
// as if an explicit failure event had arrived, driving compensation. Call
// it periodically; the work is bounded by the number of in-flight sagas.
func (c *Coordinator) SweepTimeouts(ctx context.Context) error {
	ids, err := c.indexList(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, sagaID := range ids {
		mu := c.lockFor(sagaID)
		mu.Lock()
		err := c.sweepOne(ctx, sagaID)
		mu.Unlock()
		if err != nil && !errors.Is(err, contractx.ErrNotFound) {
			errs = append(errs, fmt.Errorf("saga %s: %w", sagaID, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) sweepOne(ctx context.Context, sagaID string) error {
	inst, err := c.load(ctx, sagaID)
	if err != nil {
		return err
	}
	if inst.Status != contractx.SagaInProgress || inst.StepDeadline.IsZero() {
		return nil
	}
	if c.now().UTC().Before(inst.StepDeadline) {
		return nil
	}

	def, ok := c.reg.Get(inst.DefinitionName)
	if !ok {
		return fmt.Errorf("%w: instance %s references unknown definition %q", contractx.ErrValidation, sagaID, inst.DefinitionName)
	}
	stepIdx := inst.CurrentStep
	if stepIdx >= len(def.Steps) {
		return nil
	}
	return c.compensate(ctx, inst, def, stepIdx, fmt.Sprintf("%v: step %s", contractx.ErrSagaStepTimeout, def.Steps[stepIdx].Name))
}

/* ------------------------------ persistence ------------------------------ */

func (c *Coordinator) load(ctx context.Context, sagaID string) (*contractx.SagaInstance, error) {
	raw, err := c.mem.Recall(ctx, sagaKeyPrefix+sagaID, contractx.WithPartition(sagaID))
	if errors.Is(err, contractx.ErrNotFound) {
		// Terminal instances live under the archive key in the cold tier;
		// redelivered events still need to find them to no-op.
		raw, err = c.mem.Recall(ctx, archiveKeyPrefix+sagaID)
	}
	if errors.Is(err, contractx.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", contractx.ErrSagaNotFound, sagaID)
	}
	if err != nil {
		return nil, err
	}

	var inst contractx.SagaInstance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, fmt.Errorf("unmarshal saga instance: %w", err)
	}
	return &inst, nil
}

// save persists the instance with an optimistic version check: the stored
// version must still equal the version the caller loaded.
func (c *Coordinator) save(ctx context.Context, inst *contractx.SagaInstance) error {
	if inst.Version > 0 {
		stored, err := c.load(ctx, inst.SagaID)
		if err != nil && !errors.Is(err, contractx.ErrSagaNotFound) {
			return err
		}
		if stored != nil && stored.Version != inst.Version {
			return fmt.Errorf("%w: saga %s stored=%d loaded=%d", contractx.ErrVersionConflict, inst.SagaID, stored.Version, inst.Version)
		}
	}

	inst.Version++
	inst.UpdatedAt = c.now().UTC()

	raw, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal saga instance: %w", err)
	}
	return c.mem.Remember(ctx, contractx.IntentDurable, sagaKeyPrefix+inst.SagaID, raw, contractx.WithPartition(inst.SagaID))
}

// archive moves a terminal instance to the cold tier and drops it from the
// durable tier and the in-flight index. Recall falls through to cold, so a
// redelivered event still finds the terminal instance and no-ops.
func (c *Coordinator) archive(ctx context.Context, inst *contractx.SagaInstance) error {
	raw, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal saga instance: %w", err)
	}
	if err := c.mem.Remember(ctx, contractx.IntentArchival, archiveKeyPrefix+inst.SagaID, raw); err != nil {
		return err
	}
	if err := c.mem.Forget(ctx, sagaKeyPrefix+inst.SagaID, contractx.WithPartition(inst.SagaID)); err != nil {
		return err
	}
	return c.indexRemove(ctx, inst.SagaID)
}

/* ----------------------------- in-flight index ---------------------------- */

func (c *Coordinator) indexList(ctx context.Context) ([]string, error) {
	raw, err := c.mem.Recall(ctx, indexKey, contractx.WithPartition(indexPartition))
	if errors.Is(err, contractx.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("unmarshal saga index: %w", err)
	}
	return ids, nil
}

func (c *Coordinator) indexAdd(ctx context.Context, sagaID string) error {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	ids, err := c.indexList(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == sagaID {
			return nil
		}
	}
	return c.indexSave(ctx, append(ids, sagaID))
}

func (c *Coordinator) indexRemove(ctx context.Context, sagaID string) error {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	ids, err := c.indexList(ctx)
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, id := range ids {
		if id != sagaID {
			out = append(out, id)
		}
	}
	return c.indexSave(ctx, out)
}

func (c *Coordinator) indexSave(ctx context.Context, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal saga index: %w", err)
	}
	return c.mem.Remember(ctx, contractx.IntentDurable, indexKey, raw, contractx.WithPartition(indexPartition))
}

func (c *Coordinator) lockFor(sagaID string) *sync.Mutex {
	mu, _ := c.locks.LoadOrStore(sagaID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (c *Coordinator) stepTimeout(def Definition, stepIdx int) time.Duration {
	if stepIdx < len(def.Steps) && def.Steps[stepIdx].Timeout > 0 {
		return def.Steps[stepIdx].Timeout
	}
	return c.cfg.StepTimeout
}
