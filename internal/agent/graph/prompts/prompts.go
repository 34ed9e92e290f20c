package prompts

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/bikepack-planner/server/internal/agent/graph/tools"
)

//go:embed template/*.txt
var templates embed.FS

// Template names an embedded prompt.
type Template string

const (
	Planner           Template = "planner"
	Optimiser         Template = "optimiser"
	Reviewer          Template = "reviewer"
	Writer            Template = "writer"
	OptimiseFirstPass Template = "optimise_first_pass"
	OptimiseFeedback  Template = "optimise_feedback"
	RouteDetails      Template = "route_details"
	ReviewRequest     Template = "review_request"
	WriterRequest     Template = "writer_request"
)

// toolNames are available to every template.
var toolNames = map[string]any{
	"LocationTool":      tools.GetLocation,
	"AccommodationTool": tools.FindAccommodationAtLocation,
	"SubmitTool":        tools.SubmitRequirements,
	"ConfirmTool":       tools.ConfirmRoute,
	"SummaryTool":       tools.GetRouteSummary,
	"DetailsTool":       tools.GetSegmentDetails,
	"SearchTool":        tools.SearchAccommodationForDay,
	"AdjustTool":        tools.AdjustDailyDistance,
	"AddTool":           tools.AddIntermediateWaypoint,
	"RemoveTool":        tools.RemoveIntermediateWaypoint,
	"RecalculateTool":   tools.RecalculateCompleteRoute,
	"WeatherTool":       tools.GetWeather,
}

// Render formats a template through the eino prompt component, so prompt
// callbacks see it. vars override the shared tool names.
func Render(ctx context.Context, t Template, vars map[string]any) (string, error) {
	raw, err := templates.ReadFile("template/" + string(t) + ".txt")
	if err != nil {
		return "", fmt.Errorf("prompt %s: %w", t, err)
	}

	all := make(map[string]any, len(toolNames)+len(vars))
	for k, v := range toolNames {
		all[k] = v
	}
	for k, v := range vars {
		all[k] = v
	}

	tpl := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(string(raw)))
	msgs, err := tpl.Format(ctx, all)
	if err != nil {
		return "", fmt.Errorf("prompt %s render: %w", t, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("prompt %s render: empty result", t)
	}
	return strings.TrimSpace(msgs[0].Content), nil
}

// RenderRoute renders the route overview block shared by the reviewer and
// the writer.
func RenderRoute(ctx context.Context, summary tools.RouteSummary, riderNotes string) (string, error) {
	return Render(ctx, RouteDetails, map[string]any{
		"Summary": summary,
		"Via":     strings.Join(summary.Waypoints, ", "),
		"Context": riderNotes,
	})
}
