package nodes

import (
	"context"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/samber/lo"

	"github.com/bikepack-planner/server/internal/agent/graph/prompts"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	errx "github.com/bikepack-planner/server/internal/core/error"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// NewOptimizationNode fixes critical problems on a fresh route and acts on
// rider feedback. Until critical_optimization_done is set it runs the first
// pass; after that every entry is feedback.
func NewOptimizationNode(inv Invoker) Node {
	return Node{
		Name:     NodeOptimization,
		Requires: []model.Field{model.FieldRequirements, model.FieldSegments},
		Run: func(ctx context.Context, s *model.ConversationState) (model.StatePatch, error) {
			system, err := prompts.Render(ctx, prompts.Optimiser, nil)
			if err != nil {
				return model.StatePatch{}, errx.Internal("render optimiser prompt", err)
			}
			request, err := optimizationRequest(ctx, s)
			if err != nil {
				return model.StatePatch{}, errx.Internal("render optimisation request", err)
			}

			msg, err := inv.Invoke(ctx, NodeOptimization, system, s.Messages, schema.UserMessage(request))
			if err != nil {
				return model.StatePatch{}, err
			}
			if msg.HasToolRequests() {
				logx.Debug().Strs("tools", msg.ToolNames()).Msg("Optimiser requesting tools")
			}
			return model.StatePatch{
				Messages:             []model.Message{msg},
				AwaitingUserResponse: model.Bool(false),
			}, nil
		},
		Next:     NewOptimizationCondition(),
		Branches: branches(NodeReview, NodeOptimizationTools),
	}
}

func optimizationRequest(ctx context.Context, s *model.ConversationState) (string, error) {
	vars := map[string]any{
		"Days":    len(s.Segments),
		"DailyKM": s.Requirements.DailyDistanceKM,
	}
	if s.CriticalOptimizationDone {
		logx.Debug().Msg("Optimiser handling rider feedback")
		return prompts.Render(ctx, prompts.OptimiseFeedback, vars)
	}
	missing := pipeline.MissingLodging(s.Segments)
	vars["MissingDays"] = strings.Join(lo.Map(missing, func(d int, _ int) string { return strconv.Itoa(d) }), ", ")
	logx.Debug().Ints("days_without_lodging", missing).Msg("Optimiser first pass")
	return prompts.Render(ctx, prompts.OptimiseFirstPass, vars)
}
