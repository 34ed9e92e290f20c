package tools

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/bikepack-planner/server/internal/agent/graph/parsers"
	"github.com/bikepack-planner/server/internal/agent/model"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

type ConfirmRouteInput struct {
	Reason string `json:"reason,omitempty"`
}

func newConfirmRouteTool() Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ConfirmRoute,
			Desc: "Call only when the rider has clearly said they are happy with the route as presented. This moves on to writing the final itinerary.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"reason": {
					Type: schema.String,
					Desc: "What the rider said that confirms the plan.",
				},
			}),
		},
		Handle: func(_ context.Context, args string, _ *model.ConversationState) (Result, error) {
			var in ConfirmRouteInput
			if err := parsers.DecodeArguments(args, &in); err != nil {
				return Result{}, err
			}
			logx.Info().Str("reason", in.Reason).Msg("route confirmed")
			return Result{
				Content: encode(map[string]string{"status": "confirmed", "message": "Route confirmed. The itinerary will be written next."}),
				Patch:   model.StatePatch{UserConfirmed: model.Bool(true)},
			}, nil
		},
	}
}
