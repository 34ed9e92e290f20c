package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/samber/lo"

	"github.com/bikepack-planner/server/internal/agent/graph/parsers"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

// planResult reports a recomputed plan and the patch that installs it.
func planResult(action string, plan pipeline.Plan) Result {
	missing := pipeline.MissingLodging(plan.Segments)
	if missing == nil {
		missing = []int{}
	}
	return Result{
		Content: encode(map[string]any{
			"status":               "updated",
			"change":               action,
			"days":                 len(plan.Segments),
			"total_distance_km":    roundKM(plan.Route.DistanceMeters),
			"daily_distance_km":    plan.Requirements.DailyDistanceKM,
			"waypoints":            lo.Map(plan.Requirements.Intermediates, func(l model.Location, _ int) string { return l.Name }),
			"days_without_lodging": missing,
		}),
		Patch: plan.Patch(),
	}
}

func requirementsOf(state *model.ConversationState, tool string) (model.Requirements, error) {
	if err := state.Require(tool, model.FieldRequirements, model.FieldRoute); err != nil {
		return model.Requirements{}, err
	}
	req := *state.Requirements
	req.Intermediates = slices.Clone(req.Intermediates)
	return req, nil
}

type AdjustDailyDistanceInput struct {
	DailyDistanceKM parsers.Number `json:"daily_distance_km"`
}

func newAdjustDailyDistanceTool(p *pipeline.Pipeline) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: AdjustDailyDistance,
			Desc: "Change the target kilometres per day. The route stays the same; days and accommodation are recomputed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"daily_distance_km": {
					Type:     schema.Integer,
					Desc:     "New daily distance in kilometres.",
					Required: true,
				},
			}),
		},
		Handle: func(ctx context.Context, args string, state *model.ConversationState) (Result, error) {
			var in AdjustDailyDistanceInput
			if err := parsers.DecodeArguments(args, &in); err != nil {
				return Result{}, err
			}
			daily := in.DailyDistanceKM.Int()
			if daily <= 0 {
				return Result{}, errx.Validation("daily_distance_km must be a positive number", nil)
			}
			req, err := requirementsOf(state, AdjustDailyDistance)
			if err != nil {
				return Result{}, err
			}
			req.DailyDistanceKM = daily

			segs, err := p.Resegment(ctx, *state.Route, daily)
			if err != nil {
				return Result{}, err
			}
			plan := pipeline.Plan{Requirements: req, Route: *state.Route, Segments: segs}
			return planResult(fmt.Sprintf("daily distance set to %d km", daily), plan), nil
		},
	}
}

type AddWaypointInput struct {
	PlaceName string         `json:"place_name"`
	Position  parsers.Number `json:"position,omitempty"`
}

func newAddWaypointTool(p *pipeline.Pipeline) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: AddIntermediateWaypoint,
			Desc: "Route through an extra place. The route, days and accommodation are recomputed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"place_name": {
					Type:     schema.String,
					Desc:     "Place to pass through.",
					Required: true,
				},
				"position": {
					Type: schema.Integer,
					Desc: "1-based position among the existing waypoints. Omit to add it as the last waypoint.",
				},
			}),
		},
		Handle: func(ctx context.Context, args string, state *model.ConversationState) (Result, error) {
			var in AddWaypointInput
			if err := parsers.DecodeArguments(args, &in); err != nil {
				return Result{}, err
			}
			name := parsers.CleanPlace(in.PlaceName)
			if name == "" {
				return Result{}, errx.Validation("place_name is required", nil)
			}
			req, err := requirementsOf(state, AddIntermediateWaypoint)
			if err != nil {
				return Result{}, err
			}
			if lo.ContainsBy(req.Intermediates, func(l model.Location) bool { return parsers.SamePlace(l.Name, name) }) {
				return Result{}, errx.Validation(fmt.Sprintf("%s is already a waypoint", name), nil)
			}

			at := len(req.Intermediates)
			if pos := in.Position.Int(); pos >= 1 && pos <= len(req.Intermediates) {
				at = pos - 1
			}
			req.Intermediates = slices.Insert(req.Intermediates, at, model.Location{Name: name})

			plan, err := p.Replan(ctx, req)
			if err != nil {
				return Result{}, err
			}
			return planResult("added waypoint "+name, plan), nil
		},
	}
}

type RemoveWaypointInput struct {
	PlaceName string `json:"place_name"`
}

func newRemoveWaypointTool(p *pipeline.Pipeline) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: RemoveIntermediateWaypoint,
			Desc: "Stop routing through one of the current waypoints. The route, days and accommodation are recomputed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"place_name": {
					Type:     schema.String,
					Desc:     "Waypoint to remove, as listed in the route summary.",
					Required: true,
				},
			}),
		},
		Handle: func(ctx context.Context, args string, state *model.ConversationState) (Result, error) {
			var in RemoveWaypointInput
			if err := parsers.DecodeArguments(args, &in); err != nil {
				return Result{}, err
			}
			req, err := requirementsOf(state, RemoveIntermediateWaypoint)
			if err != nil {
				return Result{}, err
			}
			idx := slices.IndexFunc(req.Intermediates, func(l model.Location) bool { return parsers.SamePlace(l.Name, in.PlaceName) })
			if idx < 0 {
				names := lo.Map(req.Intermediates, func(l model.Location, _ int) string { return l.Name })
				current := "none"
				if len(names) > 0 {
					current = strings.Join(names, ", ")
				}
				return Result{}, errx.Validation(fmt.Sprintf("%q is not a waypoint; current waypoints: %s", in.PlaceName, current), nil)
			}
			removed := req.Intermediates[idx].Name
			req.Intermediates = slices.Delete(req.Intermediates, idx, idx+1)

			plan, err := p.Replan(ctx, req)
			if err != nil {
				return Result{}, err
			}
			return planResult("removed waypoint "+removed, plan), nil
		},
	}
}

type RecalculateRouteInput struct {
	SubmitRequirementsInput
}

func newRecalculateRouteTool(p *pipeline.Pipeline) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: RecalculateCompleteRoute,
			Desc: "Plan the whole trip again with new endpoints, waypoints or daily distance. Use when the rider changes the trip substantially.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"origin": {
					Type:     schema.String,
					Desc:     "Start of the trip.",
					Required: true,
				},
				"destination": {
					Type:     schema.String,
					Desc:     "End of the trip.",
					Required: true,
				},
				"daily_distance_km": {
					Type:     schema.Integer,
					Desc:     "Kilometres per day.",
					Required: true,
				},
				"intermediates": {
					Type:     schema.Array,
					Desc:     "Places to pass through, in order.",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
				},
			}),
		},
		Handle: func(ctx context.Context, args string, state *model.ConversationState) (Result, error) {
			var in RecalculateRouteInput
			if err := parsers.DecodeArguments(args, &in); err != nil {
				return Result{}, err
			}
			req, err := in.Requirements()
			if err != nil {
				return Result{}, err
			}
			if req.Context == "" && state.Requirements != nil {
				req.Context = state.Requirements.Context
			}
			plan, err := p.Replan(ctx, req)
			if err != nil {
				return Result{}, err
			}
			return planResult("route recalculated", plan), nil
		},
	}
}
