package nodes

import (
	"github.com/bikepack-planner/server/internal/agent/graph/tools"
	"github.com/bikepack-planner/server/internal/agent/model"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// lastRequests returns the newest message when it is an assistant message
// asking for tools.
func lastRequests(s *model.ConversationState) (model.Message, bool) {
	last, ok := s.LastMessage()
	if !ok || !last.HasToolRequests() {
		return model.Message{}, false
	}
	return last, true
}

// NewPlanningCondition routes the planner's reply: plain text waits for the
// user, a submission goes to validation, anything else to its tools.
func NewPlanningCondition() Condition {
	return func(s *model.ConversationState) Transition {
		last, ok := lastRequests(s)
		if !ok {
			logx.Debug().Msg("Planner replied without tools - suspending")
			return Transition{Next: Suspend}
		}
		if last.Requests(tools.SubmitRequirements) {
			logx.Debug().Msg("Planner submitted requirements - routing to validation")
			return Transition{Next: NodeRequirementsValidation}
		}
		logx.Debug().Strs("tools", last.ToolNames()).Msg("Routing to planning tools")
		return Transition{Next: NodePlanningTools}
	}
}

// NewLodgingCondition skips the automatic optimization pass once it has run.
func NewLodgingCondition() Condition {
	return func(s *model.ConversationState) Transition {
		if s.CriticalOptimizationDone {
			logx.Debug().Msg("Optimization already done - routing to review")
			return Transition{Next: NodeReview}
		}
		return Transition{Next: NodeOptimization}
	}
}

// NewOptimizationCondition sends confirmations through the optimization
// tools straight on to review, other tool calls back into the loop, and
// marks the pass done when the optimiser is satisfied.
func NewOptimizationCondition() Condition {
	return func(s *model.ConversationState) Transition {
		last, ok := lastRequests(s)
		if !ok {
			logx.Debug().Msg("Optimiser made no changes - routing to review")
			return Transition{
				Next: NodeReview,
				Set:  model.StatePatch{CriticalOptimizationDone: model.Bool(true)},
			}
		}
		if last.Requests(tools.ConfirmRoute) {
			logx.Debug().Msg("Optimiser confirmed the route - routing to review")
			return Transition{Next: NodeReview, Via: NodeOptimizationTools}
		}
		logx.Debug().Strs("tools", last.ToolNames()).Msg("Routing to optimization tools")
		return Transition{Next: NodeOptimizationTools}
	}
}

// NewReviewCondition hands a confirmed route to the writer and otherwise
// waits for the rider.
func NewReviewCondition() Condition {
	return func(s *model.ConversationState) Transition {
		if _, ok := lastRequests(s); ok {
			return Transition{Next: NodeReviewTools}
		}
		if s.UserConfirmed {
			logx.Debug().Msg("Route confirmed - routing to itinerary writing")
			return Transition{Next: NodeItineraryWriting}
		}
		return Transition{
			Next: Suspend,
			Set:  model.StatePatch{AwaitingUserResponse: model.Bool(true)},
		}
	}
}

// NewWritingCondition ends the conversation.
func NewWritingCondition() Condition {
	return func(*model.ConversationState) Transition {
		return Transition{Next: Suspend, Terminal: true}
	}
}
