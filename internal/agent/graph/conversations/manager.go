package conversations

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/bikepack-planner/server/internal/agent/model"
)

const (
	defaultToolWindow    = 10
	defaultMaxToolOutput = 1500
)

// MessagesManager selects the parts of the conversation log each node
// shows its model.
type MessagesManager struct {
	toolWindow    int
	maxToolOutput int
}

func NewMessagesManager(config model.ConversationConfig) *MessagesManager {
	mm := &MessagesManager{
		toolWindow:    config.ToolWindow,
		maxToolOutput: config.MaxToolOutput,
	}
	if mm.toolWindow <= 0 {
		mm.toolWindow = defaultToolWindow
	}
	if mm.maxToolOutput <= 0 {
		mm.maxToolOutput = defaultMaxToolOutput
	}
	return mm
}

// RecentToolOutputs lists successful tool results among the last messages,
// oldest first, skipping results written by the excluded nodes.
func (mm *MessagesManager) RecentToolOutputs(messages []model.Message, exclude ...string) []string {
	var out []string
	for _, msg := range trimTail(messages, mm.toolWindow) {
		if msg.Role != model.RoleToolResult || lo.Contains(exclude, msg.Node) {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" || strings.HasPrefix(content, "error:") {
			continue
		}
		content = clip(content, mm.maxToolOutput)
		out = append(out, fmt.Sprintf("%s: %s", msg.ToolName, content))
	}
	return out
}

// Tail returns the trailing run of messages written by the given nodes,
// starting at an assistant message. It is the in-progress tool loop of a
// node that sees a rebuilt context instead of the whole log.
func Tail(messages []model.Message, nodes ...string) []model.Message {
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser || !lo.Contains(nodes, messages[i].Node) {
			break
		}
		start = i
	}
	for start < len(messages) && messages[start].Role != model.RoleAssistant {
		start++
	}
	return append([]model.Message(nil), messages[start:]...)
}

// HasSpoken reports whether node ever wrote an assistant message.
func HasSpoken(messages []model.Message, node string) bool {
	return lastAssistantFrom(messages, node) >= 0
}

// DanglingRequests returns the tool requests of the newest assistant
// message that have no tool result yet.
func DanglingRequests(messages []model.Message) []model.ToolRequest {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role == model.RoleUser {
			return nil
		}
		if msg.Role != model.RoleAssistant {
			continue
		}
		answered := make(map[string]bool)
		for _, later := range messages[i+1:] {
			if later.Role == model.RoleToolResult {
				answered[later.ToolCallID] = true
			}
		}
		var out []model.ToolRequest
		for _, req := range msg.ToolRequests {
			if !answered[req.ID] {
				out = append(out, req)
			}
		}
		return out
	}
	return nil
}

// LastUserMessage returns the content of the newest user message.
func LastUserMessage(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// ====================== Helper function ======================

func lastAssistantFrom(messages []model.Message, node string) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleAssistant && messages[i].Node == node {
			return i
		}
	}
	return -1
}

func trimTail(messages []model.Message, maxTurns int) []model.Message {
	if len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}

// clip keeps at most limit runes of s.
func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
