package model

// TurnStatus is how a turn ended.
type TurnStatus string

const (
	// TurnSuspended means the engine is waiting for the next user message.
	TurnSuspended TurnStatus = "suspended"
	// TurnCompleted means the itinerary was written.
	TurnCompleted TurnStatus = "completed"
)

// TurnResult is returned by the engine for every successful turn.
type TurnResult struct {
	SessionID string     `json:"session_id"`
	Status    TurnStatus `json:"status"`
	Messages  []Message  `json:"messages"`
	Steps     int        `json:"steps"`
	LastNode  string     `json:"last_node"`
	Progress  Progress   `json:"progress"`
}

// Reply returns the content of the newest assistant message.
func (r *TurnResult) Reply() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleAssistant && r.Messages[i].Content != "" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// EventType names a streamed turn event.
type EventType string

const (
	EventProcessing  EventType = "processing"
	EventMessage     EventType = "message"
	EventStateUpdate EventType = "state_update"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
)

// Event is emitted while a turn runs.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Node      string      `json:"node,omitempty"`
	Message   *Message    `json:"message,omitempty"`
	Progress  *Progress   `json:"progress,omitempty"`
	Result    *TurnResult `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Kind      string      `json:"kind,omitempty"`
}

// Sink receives turn events synchronously. A nil Sink discards them.
type Sink func(Event)

// Emit delivers e when the sink is set.
func (s Sink) Emit(e Event) {
	if s != nil {
		s(e)
	}
}
