package graph

import (
	"github.com/bikepack-planner/server/internal/agent/graph/nodes"
	"github.com/bikepack-planner/server/internal/agent/model"
)

// ResolveEntry picks the node a new user message starts at. It depends on
// the persisted flags only, so calling it twice gives the same answer.
func ResolveEntry(s *model.ConversationState) string {
	switch {
	case s.UserConfirmed:
		return nodes.NodeItineraryWriting
	case s.AwaitingUserResponse && s.Route != nil:
		return nodes.NodeOptimization
	case s.Route != nil && s.Requirements != nil:
		return nodes.NodeReview
	default:
		return nodes.NodePlanning
	}
}
