package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/bikepack-planner/server/internal/agent/model"
)

// AnthropicChatModel adapts the Anthropic Messages API to eino's
// ToolCallingChatModel.
type AnthropicChatModel struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature float32
	tools       []anthropic.ToolUnionParam
}

func NewAnthropicChatModel(client *anthropic.Client, cfg model.ChatModelConfig) *AnthropicChatModel {
	return &AnthropicChatModel{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (m *AnthropicChatModel) GetType() string {
	return "Anthropic"
}

// WithTools returns a copy bound to tools; m itself is unchanged.
func (m *AnthropicChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	out := *m
	out.tools = make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, info := range tools {
		params, err := parametersOf(info)
		if err != nil {
			return nil, err
		}
		input := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: params["properties"],
			Required:   requiredOf(params),
		}
		t := anthropic.ToolUnionParamOfTool(input, info.Name)
		if info.Desc != "" && t.OfTool != nil {
			t.OfTool.Description = anthropic.String(info.Desc)
		}
		out.tools = append(out.tools, t)
	}
	return &out, nil
}

func (m *AnthropicChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	options := einomodel.GetCommonOptions(&einomodel.Options{
		Model:       &m.model,
		Temperature: &m.temperature,
		MaxTokens:   &m.maxTokens,
	}, opts...)

	system, messages, err := anthropicMessages(input)
	if err != nil {
		return nil, err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(*options.Model),
		Messages:  messages,
		MaxTokens: int64(*options.MaxTokens),
		System:    system,
		Tools:     m.tools,
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*options.Temperature))
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	out := &schema.Message{Role: schema.Assistant}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			use := block.AsToolUse()
			args := "{}"
			if use.Input != nil {
				if raw, err := json.Marshal(use.Input); err == nil {
					args = string(raw)
				}
			}
			out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
				ID:       use.ID,
				Type:     "function",
				Function: schema.FunctionCall{Name: use.Name, Arguments: args},
			})
		}
	}
	out.ResponseMeta = &schema.ResponseMeta{
		FinishReason: string(resp.StopReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	return out, nil
}

// Stream yields the whole reply as a single chunk.
func (m *AnthropicChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// anthropicMessages splits out the system prompt and converts the rest.
// Tool results travel in user turns, and consecutive turns of the same
// role are merged since the API requires alternation.
func anthropicMessages(input []*schema.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam

	push := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for i, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			if msg.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: msg.Content})
			}
		case schema.User:
			if msg.Content != "" {
				push(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(msg.Content))
			}
		case schema.Assistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, argumentsOf(call.Function.Arguments), call.Function.Name))
			}
			push(anthropic.MessageParamRoleAssistant, blocks...)
		case schema.Tool:
			push(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isErrorResult(msg.Content)))
		default:
			return nil, nil, fmt.Errorf("message %d: unsupported role %q", i, msg.Role)
		}
	}
	return system, out, nil
}
