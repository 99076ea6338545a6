package saga

import (
	"errors"
	"testing"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

func TestBuiltinDefinitionsAreValid(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(BuiltinDefinitions()...); err != nil {
		t.Fatalf("builtin definitions must register cleanly: %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	def := Definition{
		Name:         "dup",
		TriggerEvent: "dup.start",
		Steps:        []StepDefinition{{Name: "s1", CompletionEvent: "dup.done"}},
	}
	reg, err := NewRegistry(def)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(def); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDefinitionValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		def  Definition
	}{
		{"empty name", Definition{TriggerEvent: "t", Steps: []StepDefinition{{Name: "s", CompletionEvent: "c"}}}},
		{"no trigger", Definition{Name: "d", Steps: []StepDefinition{{Name: "s", CompletionEvent: "c"}}}},
		{"no steps", Definition{Name: "d", TriggerEvent: "t"}},
		{"unnamed step", Definition{Name: "d", TriggerEvent: "t", Steps: []StepDefinition{{CompletionEvent: "c"}}}},
		{"no completion event", Definition{Name: "d", TriggerEvent: "t", Steps: []StepDefinition{{Name: "s"}}}},
		{"duplicate step", Definition{Name: "d", TriggerEvent: "t", Steps: []StepDefinition{
			{Name: "s", CompletionEvent: "c1"},
			{Name: "s", CompletionEvent: "c2"},
		}}},
	}
	for _, tc := range cases {
		if err := tc.def.Validate(); !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}
