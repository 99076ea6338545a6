// Package router decides per request whether the fast or rich inference
// target should answer, and escalates fast answers whose confidence falls
// below the configured threshold. Decision metadata is logged for
// observability; request and response bodies are never persisted.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

const modelRetryBackoff = 50 * time.Millisecond

// Config is the router's tunable surface.
type Config struct {
	ComplexityThreshold float64       `envconfig:"COMPLEXITY_THRESHOLD" split_words:"true" default:"0.5"`
	ConfidenceThreshold float64       `envconfig:"CONFIDENCE_THRESHOLD" split_words:"true" default:"0.8"`
	FastInvokeTimeout   time.Duration `envconfig:"FAST_INVOKE_TIMEOUT" split_words:"true" default:"500ms"`
	RichInvokeTimeout   time.Duration `envconfig:"RICH_INVOKE_TIMEOUT" split_words:"true" default:"5s"`
}

func (c Config) withDefaults() Config {
	if c.ComplexityThreshold <= 0 {
		c.ComplexityThreshold = 0.5
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.8
	}
	if c.FastInvokeTimeout <= 0 {
		c.FastInvokeTimeout = 500 * time.Millisecond
	}
	if c.RichInvokeTimeout <= 0 {
		c.RichInvokeTimeout = 5 * time.Second
	}
	return c
}

// Router owns the fast and rich targets and the escalation policy.
type Router struct {
	fast ModelTarget
	rich ModelTarget
	cfg  Config
}

var _ contractx.Router = (*Router)(nil)

func New(fast, rich ModelTarget, cfg Config) (*Router, error) {
	if fast == nil {
		return nil, errors.New("fast target is required")
	}
	if rich == nil {
		return nil, errors.New("rich target is required")
	}
	return &Router{fast: fast, rich: rich, cfg: cfg.withDefaults()}, nil
}

// Decide computes the complexity score and picks the initial target.
// Deterministic for identical complexity inputs.
func (r *Router) Decide(ctx context.Context, req contractx.Request) (contractx.RoutingDecision, error) {
	if err := ctx.Err(); err != nil {
		return contractx.RoutingDecision{}, err
	}

	requestID := req.ID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	score := Complexity(req)
	target := contractx.TargetFast
	if score >= r.cfg.ComplexityThreshold {
		target = contractx.TargetRich
	}

	return contractx.RoutingDecision{
		RequestID:       requestID,
		ComplexityScore: score,
		ChosenTarget:    target,
	}, nil
}

// Invoke runs the decided target. A fast answer below the confidence
// threshold, or a fast timeout, escalates once to the rich target with the
// fast partial output as context. A rich decision is terminal: a rich
// answer is returned best-effort whatever its confidence, and a rich
// timeout surfaces as ErrModelTimeout without internal retry.
func (r *Router) Invoke(ctx context.Context, decision contractx.RoutingDecision, req contractx.Request) (contractx.Response, error) {
	if decision.ChosenTarget == contractx.TargetRich {
		resp, err := r.invokeRich(ctx, TargetRequest{Input: req.Input}, decision)
		if err != nil {
			return contractx.Response{}, err
		}
		r.logDecision(resp.Decision)
		return resp, nil
	}

	fastCtx, cancel := context.WithTimeout(ctx, r.cfg.FastInvokeTimeout)
	fastResp, err := r.fast.Complete(fastCtx, TargetRequest{Input: req.Input})
	cancel()

	var partial string
	switch {
	case err == nil && fastResp.Confidence >= r.cfg.ConfidenceThreshold:
		decision.Confidence = fastResp.Confidence
		r.logDecision(decision)
		return contractx.Response{Output: fastResp.Output, Decision: decision}, nil
	case err == nil:
		// Low confidence: escalate with the draft as context.
		partial = fastResp.Output
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// Fast budget exhausted, caller deadline intact: treat as low
		// confidence and escalate.
	case errors.Is(err, contractx.ErrModelUnavailable):
		// Fast target down: the rich target is the fallback.
	default:
		return contractx.Response{}, err
	}

	decision.Escalated = true
	resp, err := r.invokeRich(ctx, TargetRequest{Input: req.Input, PartialOutput: partial}, decision)
	if err != nil {
		return contractx.Response{}, err
	}
	r.logDecision(resp.Decision)
	return resp, nil
}

func (r *Router) invokeRich(ctx context.Context, treq TargetRequest, decision contractx.RoutingDecision) (contractx.Response, error) {
	richCtx, cancel := context.WithTimeout(ctx, r.cfg.RichInvokeTimeout)
	defer cancel()

	resp, err := r.rich.Complete(richCtx, treq)
	if err != nil && errors.Is(err, contractx.ErrModelUnavailable) {
		select {
		case <-ctx.Done():
			return contractx.Response{}, ctx.Err()
		case <-time.After(modelRetryBackoff):
		}
		resp, err = r.rich.Complete(richCtx, treq)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return contractx.Response{}, fmt.Errorf("%w: rich target exceeded %s", contractx.ErrModelTimeout, r.cfg.RichInvokeTimeout)
		}
		return contractx.Response{}, err
	}

	decision.Confidence = resp.Confidence
	return contractx.Response{Output: resp.Output, Decision: decision}, nil
}

func (r *Router) logDecision(d contractx.RoutingDecision) {
	log.Info().
		Str("request_id", d.RequestID).
		Float64("complexity_score", d.ComplexityScore).
		Str("chosen_target", string(d.ChosenTarget)).
		Float64("confidence", d.Confidence).
		Bool("escalated", d.Escalated).
		Msg("routing decision")
}
