// Package llm is the Model Invoker: one compiled eino chain per node that
// renders the system prompt, appends the conversation and calls a chat model.
package llm

import (
	"context"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	"github.com/bikepack-planner/server/internal/metrics"
	logx "github.com/bikepack-planner/server/pkg/logger"
	"github.com/bikepack-planner/server/pkg/retry"
)

const (
	keySystem  = "system"
	keyHistory = "history"
)

// Config binds a chat model to one node.
type Config struct {
	Name    string
	Chat    einomodel.ToolCallingChatModel
	Model   model.ChatModelConfig
	Tools   []*schema.ToolInfo
	Retry   retry.Policy
	Metrics *metrics.Collectors
	// Callbacks observe the prompt and chat model components.
	Callbacks []einocb.Handler
}

// Invoker calls one chat model with a fixed tool binding.
type Invoker struct {
	name      string
	cfg       model.ChatModelConfig
	policy    retry.Policy
	metrics   *metrics.Collectors
	callbacks []einocb.Handler
	pricing   model.Pricing
	runnable  compose.Runnable[map[string]any, *schema.Message]
}

// NewInvoker binds the tools and compiles the template -> model chain.
func NewInvoker(ctx context.Context, cfg Config) (*Invoker, error) {
	if cfg.Chat == nil {
		return nil, fmt.Errorf("invoker %s: nil chat model", cfg.Name)
	}
	chat := cfg.Chat
	if len(cfg.Tools) > 0 {
		bound, err := chat.WithTools(cfg.Tools)
		if err != nil {
			logx.Error().Err(err).Str("invoker", cfg.Name).Msg("Failed to bind tools")
			return nil, fmt.Errorf("invoker %s: bind tools: %w", cfg.Name, err)
		}
		chat = bound
	}

	tpl := prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage("{{."+keySystem+"}}"),
		schema.MessagesPlaceholder(keyHistory, false),
	)
	runnable, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(tpl, compose.WithNodeName(cfg.Name+"_prompt")).
		AppendChatModel(chat, compose.WithNodeName(cfg.Name+"_model")).
		Compile(ctx, compose.WithGraphName(cfg.Name))
	if err != nil {
		logx.Error().Err(err).Str("invoker", cfg.Name).Msg("Error compiling invoker chain")
		return nil, fmt.Errorf("invoker %s: compile: %w", cfg.Name, err)
	}

	return &Invoker{
		name:      cfg.Name,
		cfg:       cfg.Model,
		policy:    cfg.Retry,
		metrics:   cfg.Metrics,
		callbacks: cfg.Callbacks,
		pricing:   model.ResolvePricing(cfg.Model.Model),
		runnable:  runnable,
	}, nil
}

// Name is the node the invoker was built for.
func (i *Invoker) Name() string {
	return i.name
}

// Invoke sends system + history (+ extra trailing messages) and returns the
// reply as an assistant log entry tagged with node. Transient failures are
// retried per the policy; what is left is an external error.
func (i *Invoker) Invoke(ctx context.Context, node, system string, history []model.Message, extra ...*schema.Message) (model.Message, error) {
	msgs, err := model.ToSchemaMessages(history)
	if err != nil {
		return model.Message{}, errx.Validation("cannot build model input", err)
	}
	msgs = append(msgs, extra...)
	vars := map[string]any{
		keySystem:  system,
		keyHistory: msgs,
	}

	opts := []compose.Option{
		compose.WithChatModelOption(
			einomodel.WithTemperature(i.cfg.Temperature),
			einomodel.WithMaxTokens(i.cfg.MaxTokens),
		),
	}
	if len(i.callbacks) > 0 {
		opts = append(opts, compose.WithCallbacks(i.callbacks...))
	}

	var out *schema.Message
	attempts := 0
	err = retry.Do(ctx, i.policy, func(ctx context.Context) error {
		attempts++
		res, err := i.runnable.Invoke(ctx, vars, opts...)
		if err != nil {
			logx.Warn().Err(err).Str("node", node).Str("model", i.cfg.Model).Int("attempt", attempts).Msg("Model call failed")
			return err
		}
		if res == nil {
			return fmt.Errorf("empty model response")
		}
		out = res
		return nil
	})
	i.metrics.ObserveModel(i.cfg.Model, err)
	if err != nil {
		return model.Message{}, errx.External(fmt.Sprintf("model call failed after %d attempts", attempts), err)
	}

	fillCallIDs(out)
	i.logUsage(node, out)

	msg, err := model.FromSchema(node, out)
	if err != nil {
		return model.Message{}, errx.External("unusable model response", err)
	}
	return msg, nil
}

// fillCallIDs gives every tool call an id so its result can be paired.
func fillCallIDs(msg *schema.Message) {
	for idx := range msg.ToolCalls {
		if msg.ToolCalls[idx].ID == "" {
			msg.ToolCalls[idx].ID = "call_" + uuid.NewString()
		}
	}
}

func (i *Invoker) logUsage(node string, out *schema.Message) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, i.pricing)
	logx.Info().
		Str("node", node).
		Str("model", i.cfg.Model).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
