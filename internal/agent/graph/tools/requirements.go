package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/samber/lo"

	"github.com/bikepack-planner/server/internal/agent/graph/parsers"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

type SubmitRequirementsInput struct {
	Origin          string         `json:"origin"`
	Destination     string         `json:"destination"`
	Intermediates   []string       `json:"intermediates,omitempty"`
	DailyDistanceKM parsers.Number `json:"daily_distance_km"`
	Context         string         `json:"context,omitempty"`
}

// Requirements turns the arguments into unresolved requirements.
func (in SubmitRequirementsInput) Requirements() (model.Requirements, error) {
	origin := parsers.CleanPlace(in.Origin)
	destination := parsers.CleanPlace(in.Destination)
	if origin == "" || destination == "" {
		return model.Requirements{}, errx.Validation("origin and destination are required", nil)
	}
	daily := in.DailyDistanceKM.Int()
	if daily <= 0 {
		return model.Requirements{}, errx.Validation("daily_distance_km must be a positive number", nil)
	}
	stops := lo.FilterMap(in.Intermediates, func(s string, _ int) (model.Location, bool) {
		name := parsers.CleanPlace(s)
		return model.Location{Name: name}, name != ""
	})
	return model.Requirements{
		Origin:          model.Location{Name: origin},
		Destination:     model.Location{Name: destination},
		Intermediates:   stops,
		DailyDistanceKM: daily,
		Context:         in.Context,
	}, nil
}

var submitRequirementsInfo = &schema.ToolInfo{
	Name: SubmitRequirements,
	Desc: "Submit the trip requirements once origin, destination and daily riding distance are known. This starts route planning.",
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
		"intermediates": {
			Type:     schema.Array,
			Desc:     "Places to pass through, in riding order.",
			ElemInfo: &schema.ParameterInfo{Type: schema.String},
		},
		"daily_distance_km": {
			Type:     schema.Integer,
			Desc:     "Kilometres the rider wants to cover per day.",
			Required: true,
		},
		"context": {
			Type: schema.String,
			Desc: "Anything else worth remembering: bike type, fitness, dates, preferences.",
		},
	}),
}

func newSubmitRequirementsTool(p *pipeline.Pipeline) Tool {
	return Tool{
		Info: submitRequirementsInfo,
		Handle: func(ctx context.Context, args string, _ *model.ConversationState) (Result, error) {
			var in SubmitRequirementsInput
			if err := parsers.DecodeArguments(args, &in); err != nil {
				return Result{}, err
			}
			req, err := in.Requirements()
			if err != nil {
				return Result{}, err
			}
			resolved, err := p.ResolveRequirements(ctx, req)
			if err != nil {
				return Result{}, err
			}
			return Result{
				Content: encode(map[string]any{
					"status":       "accepted",
					"requirements": resolved,
					"message":      fmt.Sprintf("Planning %s to %s at %d km per day.", resolved.Origin.Name, resolved.Destination.Name, resolved.DailyDistanceKM),
				}),
				Patch: model.StatePatch{Requirements: &resolved},
			}, nil
		},
	}
}
