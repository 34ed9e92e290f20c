// Package llmtest provides a scripted chat model for driving the planner
// without a provider.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Call is a tool call the scripted model will emit.
type Call struct {
	ID   string
	Name string
	Args string
}

// Reply is one scripted model turn: Err wins over content.
type Reply struct {
	Content string
	Calls   []Call
	Err     error
}

// Text is a reply without tool calls.
func Text(content string) Reply {
	return Reply{Content: content}
}

// Tools is a reply requesting the given calls.
func Tools(calls ...Call) Reply {
	return Reply{Calls: calls}
}

// Fail is a reply that errors.
func Fail(err error) Reply {
	return Reply{Err: err}
}

type script struct {
	mu      sync.Mutex
	replies []Reply
	inputs  [][]*schema.Message
	tools   []*schema.ToolInfo
}

// Scripted answers Generate calls from a fixed list of replies. Copies
// returned by WithTools share the script.
type Scripted struct {
	s *script
}

func New(replies ...Reply) *Scripted {
	return &Scripted{s: &script{replies: replies}}
}

// Push appends replies to the script.
func (m *Scripted) Push(replies ...Reply) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.replies = append(m.s.replies, replies...)
}

// Remaining is the number of unused replies.
func (m *Scripted) Remaining() int {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.replies)
}

// Inputs returns the message lists seen so far, one per Generate call.
func (m *Scripted) Inputs() [][]*schema.Message {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([][]*schema.Message(nil), m.s.inputs...)
}

// LastInput is the input of the most recent call.
func (m *Scripted) LastInput() []*schema.Message {
	in := m.Inputs()
	if len(in) == 0 {
		return nil
	}
	return in[len(in)-1]
}

// BoundTools is what the last WithTools call bound.
func (m *Scripted) BoundTools() []*schema.ToolInfo {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.tools
}

func (m *Scripted) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	m.s.mu.Lock()
	m.s.tools = tools
	m.s.mu.Unlock()
	return &Scripted{s: m.s}, nil
}

func (m *Scripted) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	m.s.inputs = append(m.s.inputs, append([]*schema.Message(nil), input...))
	if len(m.s.replies) == 0 {
		return nil, fmt.Errorf("scripted model: no reply left")
	}
	r := m.s.replies[0]
	m.s.replies = m.s.replies[1:]
	if r.Err != nil {
		return nil, r.Err
	}

	out := &schema.Message{
		Role:    schema.Assistant,
		Content: r.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 10 * len(input), CompletionTokens: 5, TotalTokens: 10*len(input) + 5},
		},
	}
	for _, c := range r.Calls {
		args := c.Args
		if args == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
			ID:       c.ID,
			Type:     "function",
			Function: schema.FunctionCall{Name: c.Name, Arguments: args},
		})
	}
	return out, nil
}

func (m *Scripted) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
