package model

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/samber/lo"
)

// Role tags a Message variant.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// ToolRequest is a model's structured request to call a named tool.
type ToolRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of the append-only conversation log. Role decides
// which fields are meaningful: ToolRequests only on assistant messages,
// ToolCallID/ToolName only on tool results.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content"`
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
	ToolName     string        `json:"tool_name,omitempty"`
	// Node records which graph node produced the entry.
	Node string `json:"node,omitempty"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(node, content string, requests []ToolRequest) Message {
	m := Message{Role: RoleAssistant, Content: content, Node: node}
	if len(requests) > 0 {
		m.ToolRequests = append([]ToolRequest(nil), requests...)
	}
	return m
}

func ToolResultMessage(node, callID, toolName, content string) Message {
	return Message{Role: RoleToolResult, Content: content, ToolCallID: callID, ToolName: toolName, Node: node}
}

// HasToolRequests reports whether m is an assistant message asking for tools.
func (m Message) HasToolRequests() bool {
	return m.Role == RoleAssistant && len(m.ToolRequests) > 0
}

// ToolNames lists the requested tool names in request order.
func (m Message) ToolNames() []string {
	return lo.Map(m.ToolRequests, func(r ToolRequest, _ int) string { return r.Name })
}

// Requests reports whether any tool request targets name.
func (m Message) Requests(name string) bool {
	return lo.ContainsBy(m.ToolRequests, func(r ToolRequest) bool { return r.Name == name })
}

func (m Message) clone() Message {
	out := m
	if m.ToolRequests != nil {
		out.ToolRequests = append([]ToolRequest(nil), m.ToolRequests...)
	}
	return out
}

// ToSchema converts the entry into an eino message for a model call.
func (m Message) ToSchema() (*schema.Message, error) {
	switch m.Role {
	case RoleUser:
		return schema.UserMessage(m.Content), nil
	case RoleAssistant:
		calls := lo.Map(m.ToolRequests, func(r ToolRequest, _ int) schema.ToolCall {
			return schema.ToolCall{
				ID:       r.ID,
				Type:     "function",
				Function: schema.FunctionCall{Name: r.Name, Arguments: r.Arguments},
			}
		})
		if len(calls) == 0 {
			calls = nil
		}
		return schema.AssistantMessage(m.Content, calls), nil
	case RoleToolResult:
		return &schema.Message{
			Role:       schema.Tool,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
		}, nil
	default:
		return nil, fmt.Errorf("unknown message role %q", m.Role)
	}
}

// ToSchemaMessages converts a log slice for a model call.
func ToSchemaMessages(msgs []Message) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(msgs))
	for i, m := range msgs {
		sm, err := m.ToSchema()
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, sm)
	}
	return out, nil
}

// FromSchema converts a model response into an assistant log entry.
func FromSchema(node string, msg *schema.Message) (Message, error) {
	if msg == nil {
		return Message{}, fmt.Errorf("nil model response")
	}
	if msg.Role != "" && msg.Role != schema.Assistant {
		return Message{}, fmt.Errorf("unexpected response role %q", msg.Role)
	}
	reqs := lo.Map(msg.ToolCalls, func(c schema.ToolCall, _ int) ToolRequest {
		return ToolRequest{ID: c.ID, Name: c.Function.Name, Arguments: c.Function.Arguments}
	})
	return AssistantMessage(node, msg.Content, reqs), nil
}
