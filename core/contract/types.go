package contract

import (
	"time"
)

// Intent is how callers express where a value should live. The memory
// manager maps intent to a concrete tier; callers never address tiers
// directly.
type Intent string

const (
	IntentEphemeral Intent = "ephemeral"
	IntentDurable   Intent = "durable"
	IntentArchival  Intent = "archival"
)

// Tier is the concrete storage class an entry landed in.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// MemoryEntry is the record shape shared by all tiers.
type MemoryEntry struct {
	Tier          Tier       `json:"tier"`
	Key           string     `json:"key"`
	Value         []byte     `json:"value"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	PartitionHint string     `json:"partition_hint,omitempty"`
}

// TargetKind identifies which inference target a request was routed to.
type TargetKind string

const (
	TargetFast TargetKind = "fast"
	TargetRich TargetKind = "rich"
)

// Request is the routing input. ComplexityOverride, when set, replaces the
// heuristic score entirely.
type Request struct {
	ID                 string   `json:"id"`
	Input              string   `json:"input"`
	ComplexityOverride *float64 `json:"complexity_override,omitempty"`
}

// RoutingDecision is created once per request by Decide and finalized by
// Invoke. It is logged for observability, never persisted.
type RoutingDecision struct {
	RequestID       string     `json:"request_id"`
	ComplexityScore float64    `json:"complexity_score"`
	ChosenTarget    TargetKind `json:"chosen_target"`
	Confidence      float64    `json:"confidence"`
	Escalated       bool       `json:"escalated"`
}

// Response is the routed inference result. Decision carries the final
// routing outcome, including escalation.
type Response struct {
	Output   string          `json:"output"`
	Decision RoutingDecision `json:"decision"`
}

type SagaStatus string

const (
	SagaPending      SagaStatus = "pending"
	SagaInProgress   SagaStatus = "in_progress"
	SagaCompleted    SagaStatus = "completed"
	SagaCompensating SagaStatus = "compensating"
	SagaFailed       SagaStatus = "failed"
)

type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// StepRecord tracks one step of a saga instance.
type StepRecord struct {
	Name             string     `json:"name"`
	Status           StepStatus `json:"status"`
	CompensationName string     `json:"compensation_name,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// SagaInstance is the persistent source-of-truth for one in-flight saga.
// It lives in the durable tier (partitioned by SagaID) while in flight and
// is archived to the cold tier once terminal. Version backs the optimistic
// concurrency check on save.
type SagaInstance struct {
	SagaID         string       `json:"saga_id"`
	DefinitionName string       `json:"definition_name"`
	Payload        []byte       `json:"payload,omitempty"`
	CurrentStep    int          `json:"current_step"`
	Steps          []StepRecord `json:"steps"`
	Status         SagaStatus   `json:"status"`
	Version        int64        `json:"version"`
	StepDeadline   time.Time    `json:"step_deadline,omitzero"`
	StartedAt      time.Time    `json:"started_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Terminal reports whether the instance reached an end state.
func (s *SagaInstance) Terminal() bool {
	return s.Status == SagaCompleted || s.Status == SagaFailed
}

// DomainEvent is the wire record on the ordered, partitioned log. Ordering
// is guaranteed only within a partition key; sequence numbers are assigned
// per partition by the log on append.
type DomainEvent struct {
	EventType    string    `json:"event_type"`
	SagaID       string    `json:"saga_id,omitempty"`
	PartitionKey string    `json:"partition_key"`
	Payload      []byte    `json:"payload,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	SequenceNo   uint64    `json:"sequence_no"`
}
