package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

// TargetRequest is the input to one model invocation. PartialOutput
// carries the fast target's answer when escalating to the rich target.
type TargetRequest struct {
	Input         string
	PartialOutput string
}

// TargetResponse is a model answer plus the target's self-reported
// confidence in [0,1].
type TargetResponse struct {
	Output     string
	Confidence float64
}

// ModelTarget is one inference endpoint. The router owns timeouts; a
// target just completes or fails.
type ModelTarget interface {
	Complete(ctx context.Context, req TargetRequest) (TargetResponse, error)
}

// OpenAITargetConfig configures one chat-completions target. Fast and rich
// targets are two instances of this config with different model names.
type OpenAITargetConfig struct {
	BaseURL             string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey              string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model               string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionTokens int64         `envconfig:"MAX_COMPLETION_TOKENS" split_words:"true" default:"2000"`
	Temperature         float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout             time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

func (c OpenAITargetConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: target api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: target model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenAITarget invokes a chat-completions endpoint through the OpenAI SDK.
// Confidence is derived from token logprobs when the provider returns
// them; otherwise the answer is treated as fully confident.
type OpenAITarget struct {
	client openai.Client
	cfg    OpenAITargetConfig
}

var _ ModelTarget = (*OpenAITarget)(nil)

func NewOpenAITarget(cfg OpenAITargetConfig) (*OpenAITarget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAITarget{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

const escalationSystemPrompt = "A smaller model produced a draft answer with low confidence. " +
	"Use it as context, correct it where needed, and answer the request fully."

func (t *OpenAITarget) Complete(ctx context.Context, req TargetRequest) (TargetResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 3)
	if strings.TrimSpace(req.PartialOutput) != "" {
		messages = append(messages,
			openai.SystemMessage(escalationSystemPrompt),
			openai.SystemMessage("Draft answer: "+req.PartialOutput),
		)
	}
	messages = append(messages, openai.UserMessage(req.Input))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(strings.TrimSpace(t.cfg.Model)),
		Messages: messages,
		Logprobs: openai.Bool(true),
	}
	if t.cfg.Temperature >= 0 {
		params.Temperature = openai.Float(t.cfg.Temperature)
	}
	if t.cfg.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(t.cfg.MaxCompletionTokens)
	}

	completion, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return TargetResponse{}, err
		}
		return TargetResponse{}, fmt.Errorf("%w: %v", contractx.ErrModelUnavailable, err)
	}
	if len(completion.Choices) == 0 {
		return TargetResponse{}, fmt.Errorf("%w: empty completion", contractx.ErrModelUnavailable)
	}

	choice := completion.Choices[0]
	return TargetResponse{
		Output:     choice.Message.Content,
		Confidence: confidenceFromLogprobs(choice.Logprobs.Content),
	}, nil
}

// confidenceFromLogprobs maps the mean token logprob to [0,1]. Providers
// that omit logprobs get confidence 1.0, leaving escalation to the
// complexity threshold alone.
func confidenceFromLogprobs(tokens []openai.ChatCompletionTokenLogprob) float64 {
	if len(tokens) == 0 {
		return 1.0
	}
	var sum float64
	for _, tok := range tokens {
		sum += tok.Logprob
	}
	return clamp01(math.Exp(sum / float64(len(tokens))))
}
