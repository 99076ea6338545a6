package router

import (
	"strings"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

// Multi-step phrasing is a strong signal that a request needs the rich
// target: chained actions, cross-service verbs, comparisons.
var multiStepKeywords = []string{
	"and then",
	"after that",
	"step by step",
	"first",
	"finally",
	"compare",
	"refund and",
	"cancel and",
	"across",
	"reconcile",
}

const (
	lengthNormTokens    = 200.0
	keywordWeight       = 0.15
	multiQuestionWeight = 0.1
)

// Complexity computes a deterministic score in [0,1] from request
// features. A caller-supplied override replaces the heuristics entirely.
func Complexity(req contractx.Request) float64 {
	if req.ComplexityOverride != nil {
		return clamp01(*req.ComplexityOverride)
	}

	input := strings.ToLower(req.Input)
	tokens := len(strings.Fields(input))

	score := float64(tokens) / lengthNormTokens
	for _, kw := range multiStepKeywords {
		if strings.Contains(input, kw) {
			score += keywordWeight
		}
	}
	if strings.Count(input, "?") > 1 {
		score += multiQuestionWeight
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
