package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/bikepack-planner/server/internal/agent/model"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Factory creates chat models for one provider, sharing a single client.
type Factory struct {
	provider  string
	gemini    *genai.Client
	anthropic *anthropic.Client
	openai    *openai.Client
}

// NewFactory creates the provider client selected by cfg.Provider. The SDK
// clients never retry on their own; the Invoker owns the retry budget.
func NewFactory(ctx context.Context, cfg model.LLMConfig) (*Factory, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	f := &Factory{provider: provider}

	switch provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for provider %s", provider)
		}
		clientCfg := &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if cfg.GeminiBaseURL != "" {
			clientCfg.HTTPOptions.BaseURL = cfg.GeminiBaseURL
		}
		client, err := genai.NewClient(ctx, clientCfg)
		if err != nil {
			logx.Error().Err(err).Msg("Error creating Gemini client")
			return nil, fmt.Errorf("error creating Gemini client: %w", err)
		}
		f.gemini = client

	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for provider %s", provider)
		}
		client := anthropic.NewClient(
			anthropicopt.WithAPIKey(cfg.AnthropicAPIKey),
			anthropicopt.WithMaxRetries(0),
		)
		f.anthropic = &client

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for provider %s", provider)
		}
		client := openai.NewClient(
			openaiopt.WithAPIKey(cfg.OpenAIAPIKey),
			openaiopt.WithMaxRetries(0),
		)
		f.openai = &client

	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}

	logx.Debug().Str("provider", provider).Msg("LLM provider client created")
	return f, nil
}

// Provider is the normalised provider name.
func (f *Factory) Provider() string {
	return f.provider
}

// ChatModel creates a tool-calling chat model for one node's settings.
func (f *Factory) ChatModel(ctx context.Context, cfg model.ChatModelConfig) (einomodel.ToolCallingChatModel, error) {
	switch f.provider {
	case ProviderGemini:
		temperature := cfg.Temperature
		maxTokens := cfg.MaxTokens
		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:      f.gemini,
			Model:       cfg.Model,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
			ThinkingConfig: &genai.ThinkingConfig{
				IncludeThoughts: false,
				ThinkingBudget:  genai.Ptr(int32(1024)),
			},
		})
		if err != nil {
			logx.Error().Err(err).Str("model", cfg.Model).Msg("Error creating Gemini model")
			return nil, fmt.Errorf("error creating Gemini model %s: %w", cfg.Model, err)
		}
		return cm, nil
	case ProviderAnthropic:
		return NewAnthropicChatModel(f.anthropic, cfg), nil
	case ProviderOpenAI:
		return NewOpenAIChatModel(f.openai, cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", f.provider)
	}
}
