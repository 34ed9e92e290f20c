package model

// StatePatch is a sparse update. Messages are appended; every other field
// overwrites the state only when set.
type StatePatch struct {
	Messages                 []Message
	Requirements             *Requirements
	Route                    *Route
	Segments                 []Segment
	UserConfirmed            *bool
	AwaitingUserResponse     *bool
	CriticalOptimizationDone *bool
}

// Bool returns a pointer for patch flag fields.
func Bool(v bool) *bool {
	return &v
}

// IsEmpty reports whether applying p would change nothing.
func (p StatePatch) IsEmpty() bool {
	return len(p.Messages) == 0 &&
		p.Requirements == nil &&
		p.Route == nil &&
		p.Segments == nil &&
		p.UserConfirmed == nil &&
		p.AwaitingUserResponse == nil &&
		p.CriticalOptimizationDone == nil
}

// Merge folds next on top of p, as if p were applied first and next second.
func (p StatePatch) Merge(next StatePatch) StatePatch {
	out := p
	if len(next.Messages) > 0 {
		out.Messages = append(append([]Message(nil), p.Messages...), next.Messages...)
	}
	if next.Requirements != nil {
		out.Requirements = next.Requirements
	}
	if next.Route != nil {
		out.Route = next.Route
	}
	if next.Segments != nil {
		out.Segments = next.Segments
	}
	if next.UserConfirmed != nil {
		out.UserConfirmed = next.UserConfirmed
	}
	if next.AwaitingUserResponse != nil {
		out.AwaitingUserResponse = next.AwaitingUserResponse
	}
	if next.CriticalOptimizationDone != nil {
		out.CriticalOptimizationDone = next.CriticalOptimizationDone
	}
	return out
}

// Apply returns a new state with p merged in; s is left untouched.
func (s *ConversationState) Apply(p StatePatch) *ConversationState {
	out := s.Clone()
	if out == nil {
		out = NewConversationState()
	}
	for _, m := range p.Messages {
		out.Messages = append(out.Messages, m.clone())
	}
	if p.Requirements != nil {
		r := p.Requirements.clone()
		out.Requirements = &r
	}
	if p.Route != nil {
		r := *p.Route
		out.Route = &r
	}
	if p.Segments != nil {
		out.Segments = CloneSegments(p.Segments)
	}
	if p.UserConfirmed != nil {
		out.UserConfirmed = *p.UserConfirmed
	}
	if p.AwaitingUserResponse != nil {
		out.AwaitingUserResponse = *p.AwaitingUserResponse
	}
	if p.CriticalOptimizationDone != nil {
		out.CriticalOptimizationDone = *p.CriticalOptimizationDone
	}
	return out
}
