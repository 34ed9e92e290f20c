package tools

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/bikepack-planner/server/internal/agent/graph/parsers"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
)

type SearchAccommodationForDayInput struct {
	DayNumber parsers.Number `json:"day_number"`
	RadiusKM  parsers.Number `json:"radius_km"`
}

func newSearchAccommodationForDayTool(p *pipeline.Pipeline) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: SearchAccommodationForDay,
			Desc: "Search again for accommodation at the end of one day, usually with a wider radius. Replaces that day's options.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"day_number": {
					Type:     schema.Integer,
					Desc:     "Day whose end point to search around, starting at 1.",
					Required: true,
				},
				"radius_km": {
					Type:     schema.Number,
					Desc:     "Search radius in kilometres, up to 50.",
					Required: true,
				},
			}),
		},
		Handle: func(ctx context.Context, args string, state *model.ConversationState) (Result, error) {
			var in SearchAccommodationForDayInput
			if err := parsers.DecodeArguments(args, &in); err != nil {
				return Result{}, err
			}
			idx, seg, err := segmentFor(state, in.DayNumber)
			if err != nil {
				return Result{}, err
			}
			radius := radiusOrDefault(in.RadiusKM, p.RadiusKM)
			found, err := p.SearchDay(ctx, seg, radius)
			if err != nil {
				return Result{}, err
			}

			segs := model.CloneSegments(state.Segments)
			segs[idx].Lodging = found
			return Result{
				Content: encode(map[string]any{
					"day":       seg.Day,
					"near":      seg.Route.Destination.Name,
					"radius_km": radius,
					"count":     len(found),
					"options":   found,
				}),
				Patch: model.StatePatch{Segments: segs},
			}, nil
		},
	}
}
