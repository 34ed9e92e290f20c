package nodes

import (
	"context"
	"fmt"

	"github.com/bikepack-planner/server/internal/agent/graph/prompts"
	"github.com/bikepack-planner/server/internal/agent/graph/tools"
	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// NewPlanningNode gathers trip requirements through conversation. The
// planner sees the whole log.
func NewPlanningNode(inv Invoker) Node {
	return Node{
		Name: NodePlanning,
		Run: func(ctx context.Context, s *model.ConversationState) (model.StatePatch, error) {
			system, err := prompts.Render(ctx, prompts.Planner, nil)
			if err != nil {
				return model.StatePatch{}, errx.Internal("render planner prompt", err)
			}
			msg, err := inv.Invoke(ctx, NodePlanning, system, s.Messages)
			if err != nil {
				return model.StatePatch{}, err
			}
			if msg.HasToolRequests() {
				logx.Debug().Strs("tools", msg.ToolNames()).Msg("Planner requesting tools")
			}
			return model.StatePatch{Messages: []model.Message{msg}}, nil
		},
		Next:     NewPlanningCondition(),
		Branches: branches(Suspend, NodeRequirementsValidation, NodePlanningTools),
	}
}

// NewRequirementsNode executes the planner's requests, submission included,
// and fails when no requirements come out of it.
func NewRequirementsNode(d *tools.Dispatcher) Node {
	return Node{
		Name:     NodeRequirementsValidation,
		Requires: []model.Field{model.FieldToolRequests},
		Run: func(ctx context.Context, s *model.ConversationState) (model.StatePatch, error) {
			last, _ := s.LastMessage()
			if !last.Requests(tools.SubmitRequirements) {
				return model.StatePatch{}, errx.Validation(
					fmt.Sprintf("%s requires a %s request", NodeRequirementsValidation, tools.SubmitRequirements), nil)
			}
			patch, err := d.ExecuteAll(ctx, NodeRequirementsValidation, last.ToolRequests, s)
			if err != nil {
				return model.StatePatch{}, err
			}
			if patch.Requirements == nil {
				return model.StatePatch{}, errx.Validation("requirements were not accepted", fmt.Errorf("%s", submissionResult(patch)))
			}
			logx.Info().
				Str("origin", patch.Requirements.Origin.Name).
				Str("destination", patch.Requirements.Destination.Name).
				Int("daily_distance_km", patch.Requirements.DailyDistanceKM).
				Msg("Requirements validated")
			return patch, nil
		},
		Next:     always(NodeRouteCalculation),
		Branches: branches(NodeRouteCalculation),
	}
}

func submissionResult(p model.StatePatch) string {
	for _, m := range p.Messages {
		if m.Role == model.RoleToolResult && m.ToolName == tools.SubmitRequirements {
			return m.Content
		}
	}
	return "no submission result"
}

// NewToolExecNode dispatches every request of the newest assistant message
// through d and loops back to next.
func NewToolExecNode(name string, d *tools.Dispatcher, next string) Node {
	return Node{
		Name:     name,
		Requires: []model.Field{model.FieldToolRequests},
		Run: func(ctx context.Context, s *model.ConversationState) (model.StatePatch, error) {
			last, _ := s.LastMessage()
			return d.ExecuteAll(ctx, name, last.ToolRequests, s)
		},
		Next:     always(next),
		Branches: branches(next),
	}
}
