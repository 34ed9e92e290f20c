package model

import (
	"context"
	"errors"
	"time"
)

// ErrCheckpointNotFound is returned by a CheckpointStore for unknown sessions.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointStore persists one ConversationState per session. Implementations
// must be linearizable per session id.
type CheckpointStore interface {
	Get(ctx context.Context, sessionID string) (*ConversationState, error)
	Put(ctx context.Context, sessionID string, state *ConversationState) error
	Delete(ctx context.Context, sessionID string) error
}

// Cursor points at the node an interrupted turn continues from. Then, when
// set, forces the successor of Node instead of consulting its predicate.
type Cursor struct {
	Node string `json:"node"`
	Then string `json:"then,omitempty"`
}

// ConversationState is the single record threaded through a session.
type ConversationState struct {
	Messages                 []Message     `json:"messages"`
	Requirements             *Requirements `json:"requirements,omitempty"`
	Route                    *Route        `json:"route,omitempty"`
	Segments                 []Segment     `json:"segments,omitempty"`
	UserConfirmed            bool          `json:"user_confirmed"`
	AwaitingUserResponse     bool          `json:"awaiting_user_response"`
	CriticalOptimizationDone bool          `json:"critical_optimization_done"`

	// Pending is set while a turn is in flight and cleared when it suspends.
	Pending *Cursor `json:"pending,omitempty"`
}

// NewConversationState returns the empty state of a fresh session.
func NewConversationState() *ConversationState {
	return &ConversationState{Messages: []Message{}}
}

// Clone returns a deep copy. Nodes only ever see clones.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.clone()
	}
	if s.Requirements != nil {
		r := s.Requirements.clone()
		out.Requirements = &r
	}
	if s.Route != nil {
		r := *s.Route
		out.Route = &r
	}
	out.Segments = CloneSegments(s.Segments)
	if s.Pending != nil {
		c := *s.Pending
		out.Pending = &c
	}
	return &out
}

// LastMessage returns the newest log entry.
func (s *ConversationState) LastMessage() (Message, bool) {
	if s == nil || len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Progress is a compact view of how far planning got.
type Progress struct {
	HasRequirements          bool `json:"has_requirements"`
	HasRoute                 bool `json:"has_route"`
	Days                     int  `json:"days"`
	DaysWithoutLodging       int  `json:"days_without_lodging"`
	UserConfirmed            bool `json:"user_confirmed"`
	AwaitingUserResponse     bool `json:"awaiting_user_response"`
	CriticalOptimizationDone bool `json:"critical_optimization_done"`
	MessageCount             int  `json:"message_count"`
}

func (s *ConversationState) Progress() Progress {
	p := Progress{
		HasRequirements:          s.Requirements != nil,
		HasRoute:                 s.Route != nil,
		Days:                     len(s.Segments),
		UserConfirmed:            s.UserConfirmed,
		AwaitingUserResponse:     s.AwaitingUserResponse,
		CriticalOptimizationDone: s.CriticalOptimizationDone,
		MessageCount:             len(s.Messages),
	}
	for _, seg := range s.Segments {
		if !seg.HasLodging() {
			p.DaysWithoutLodging++
		}
	}
	return p
}

// CheckpointInfo describes a stored checkpoint.
type CheckpointInfo struct {
	SessionID string
	UpdatedAt time.Time
}

// CheckpointLister is implemented by stores that can enumerate sessions.
type CheckpointLister interface {
	List(ctx context.Context) ([]CheckpointInfo, error)
}
