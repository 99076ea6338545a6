package saga

import (
	"fmt"
	"strings"
	"sync"
	"time"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

// StepDefinition describes one step of a saga. The coordinator waits for
// CompletionEvent or FailureEvent; CompensationEvent, when set, is
// published during rollback of a completed step. RequestEvent, when set,
// is published to prompt the responsible service once the step becomes
// current.
type StepDefinition struct {
	Name              string
	CompletionEvent   string
	FailureEvent      string
	CompensationEvent string
	RequestEvent      string

	// Timeout overrides the coordinator's default step deadline.
	Timeout time.Duration
}

// Definition is a named saga blueprint. TriggerEvent is published by Start
// and kicks off the first step.
type Definition struct {
	Name         string
	TriggerEvent string
	Steps        []StepDefinition
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: definition name is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(d.TriggerEvent) == "" {
		return fmt.Errorf("%w: definition %s has no trigger event", contractx.ErrValidation, d.Name)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: definition %s has no steps", contractx.ErrValidation, d.Name)
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return fmt.Errorf("%w: definition %s has an unnamed step", contractx.ErrValidation, d.Name)
		}
		if seen[step.Name] {
			return fmt.Errorf("%w: definition %s duplicates step %s", contractx.ErrValidation, d.Name, step.Name)
		}
		seen[step.Name] = true
		if strings.TrimSpace(step.CompletionEvent) == "" {
			return fmt.Errorf("%w: step %s/%s has no completion event", contractx.ErrValidation, d.Name, step.Name)
		}
	}
	return nil
}

// Registry holds the known saga definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(d Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[d.Name]; exists {
		return fmt.Errorf("%w: definition %s already registered", contractx.ErrValidation, d.Name)
	}
	r.defs[d.Name] = d
	return nil
}

func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// BuiltinDefinitions returns the retail workflows shipped with the core.
func BuiltinDefinitions() []Definition {
	return []Definition{
		{
			Name:         "order_fulfillment",
			TriggerEvent: "order.created",
			Steps: []StepDefinition{
				{
					Name:              "payment",
					CompletionEvent:   "payment.completed",
					FailureEvent:      "payment.failed",
					CompensationEvent: "payment.refund",
				},
				{
					Name:              "inventory",
					RequestEvent:      "inventory.reserve",
					CompletionEvent:   "inventory.reserved",
					FailureEvent:      "inventory.failed",
					CompensationEvent: "inventory.release",
				},
				{
					Name:            "shipping",
					RequestEvent:    "shipment.dispatch",
					CompletionEvent: "shipment.dispatched",
					FailureEvent:    "shipment.failed",
				},
			},
		},
		{
			Name:         "return_merchandise",
			TriggerEvent: "return.requested",
			Steps: []StepDefinition{
				{
					Name:            "approval",
					CompletionEvent: "return.approved",
					FailureEvent:    "return.rejected",
				},
				{
					Name:              "refund",
					RequestEvent:      "payment.refund_request",
					CompletionEvent:   "payment.refunded",
					FailureEvent:      "payment.refund_failed",
					CompensationEvent: "payment.recharge",
				},
				{
					Name:            "restock",
					RequestEvent:    "inventory.restock",
					CompletionEvent: "inventory.restocked",
					FailureEvent:    "inventory.restock_failed",
				},
			},
		},
		{
			Name:         "inventory_remediation",
			TriggerEvent: "inventory.discrepancy_detected",
			Steps: []StepDefinition{
				{
					Name:            "audit",
					CompletionEvent: "inventory.audited",
					FailureEvent:    "inventory.audit_failed",
				},
				{
					Name:              "adjustment",
					RequestEvent:      "inventory.adjust",
					CompletionEvent:   "inventory.adjusted",
					FailureEvent:      "inventory.adjust_failed",
					CompensationEvent: "inventory.adjustment_reverse",
				},
				{
					Name:            "notification",
					RequestEvent:    "procurement.notify",
					CompletionEvent: "procurement.notified",
					FailureEvent:    "procurement.notify_failed",
				},
			},
		},
	}
}
