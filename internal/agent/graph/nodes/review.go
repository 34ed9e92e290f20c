package nodes

import (
	"context"

	"github.com/bikepack-planner/server/internal/agent/graph/conversations"
	"github.com/bikepack-planner/server/internal/agent/graph/prompts"
	"github.com/bikepack-planner/server/internal/agent/graph/tools"
	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

// Review prompt modes.
const (
	ReviewInitial   = "initial"
	ReviewResponse  = "response"
	ReviewConfirmed = "confirmed"
)

// ReviewMode picks how the reviewer addresses the rider. Its own running
// tool loop does not count as an earlier review.
func ReviewMode(s *model.ConversationState) string {
	loop := conversations.Tail(s.Messages, NodeReview, NodeReviewTools)
	earlier := s.Messages[:len(s.Messages)-len(loop)]
	switch {
	case s.UserConfirmed:
		return ReviewConfirmed
	case conversations.HasSpoken(earlier, NodeReview):
		return ReviewResponse
	default:
		return ReviewInitial
	}
}

// NewReviewNode presents the route. Its model sees a summary built from
// state plus recent tool data, not the raw log, and its own tool loop.
func NewReviewNode(inv Invoker, mm *conversations.MessagesManager) Node {
	return Node{
		Name:     NodeReview,
		Requires: []model.Field{model.FieldRequirements, model.FieldRoute, model.FieldSegments},
		Run: func(ctx context.Context, s *model.ConversationState) (model.StatePatch, error) {
			system, err := prompts.Render(ctx, prompts.Reviewer, map[string]any{"Mode": ReviewMode(s)})
			if err != nil {
				return model.StatePatch{}, errx.Internal("render reviewer prompt", err)
			}
			summary, err := tools.Summarize(s, true)
			if err != nil {
				return model.StatePatch{}, err
			}
			route, err := prompts.RenderRoute(ctx, summary, s.Requirements.Context)
			if err != nil {
				return model.StatePatch{}, errx.Internal("render route details", err)
			}
			request, err := prompts.Render(ctx, prompts.ReviewRequest, map[string]any{
				"Route":       route,
				"RecentTools": mm.RecentToolOutputs(s.Messages, NodeReviewTools),
			})
			if err != nil {
				return model.StatePatch{}, errx.Internal("render review request", err)
			}

			history := append([]model.Message{model.UserMessage(request)}, conversations.Tail(s.Messages, NodeReview, NodeReviewTools)...)
			msg, err := inv.Invoke(ctx, NodeReview, system, history)
			if err != nil {
				return model.StatePatch{}, err
			}
			return model.StatePatch{Messages: []model.Message{msg}}, nil
		},
		Next:     NewReviewCondition(),
		Branches: branches(NodeReviewTools, NodeItineraryWriting, Suspend),
	}
}

// NewWriterNode writes the day-by-day itinerary for a confirmed route.
func NewWriterNode(inv Invoker) Node {
	return Node{
		Name:     NodeItineraryWriting,
		Requires: []model.Field{model.FieldRequirements, model.FieldRoute, model.FieldSegments},
		Run: func(ctx context.Context, s *model.ConversationState) (model.StatePatch, error) {
			system, err := prompts.Render(ctx, prompts.Writer, nil)
			if err != nil {
				return model.StatePatch{}, errx.Internal("render writer prompt", err)
			}
			summary, err := tools.Summarize(s, true)
			if err != nil {
				return model.StatePatch{}, err
			}
			route, err := prompts.RenderRoute(ctx, summary, s.Requirements.Context)
			if err != nil {
				return model.StatePatch{}, errx.Internal("render route details", err)
			}
			request, err := prompts.Render(ctx, prompts.WriterRequest, map[string]any{"Route": route})
			if err != nil {
				return model.StatePatch{}, errx.Internal("render writer request", err)
			}

			msg, err := inv.Invoke(ctx, NodeItineraryWriting, system, []model.Message{model.UserMessage(request)})
			if err != nil {
				return model.StatePatch{}, err
			}
			return model.StatePatch{Messages: []model.Message{msg}}, nil
		},
		Next:     NewWritingCondition(),
		Branches: branches(Suspend),
	}
}
