package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/cloudwego/eino/schema"
	"github.com/samber/lo"

	"github.com/bikepack-planner/server/internal/agent/graph/parsers"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

// DaySummary describes one segment for a model.
type DaySummary struct {
	Day            int             `json:"day"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	DistanceKM     float64         `json:"distance_km"`
	ElevationGainM int             `json:"elevation_gain_m"`
	LodgingCount   int             `json:"lodging_count"`
	Lodging        []model.Lodging `json:"lodging,omitempty"`
}

// RouteSummary is the overview returned by get_route_summary and shown to
// the reviewer.
type RouteSummary struct {
	Origin             string       `json:"origin"`
	Destination        string       `json:"destination"`
	Waypoints          []string     `json:"waypoints,omitempty"`
	TotalDistanceKM    float64      `json:"total_distance_km"`
	ElevationGainM     int          `json:"elevation_gain_m"`
	DailyDistanceKM    int          `json:"daily_distance_km"`
	Days               int          `json:"days"`
	Segments           []DaySummary `json:"segments"`
	DaysWithoutLodging []int        `json:"days_without_lodging"`
}

func roundKM(meters int) float64 {
	return math.Round(float64(meters)/100) / 10
}

func summarizeDay(s model.Segment, withLodging bool) DaySummary {
	d := DaySummary{
		Day:            s.Day,
		From:           s.Route.Origin.Name,
		To:             s.Route.Destination.Name,
		DistanceKM:     roundKM(s.Route.DistanceMeters),
		ElevationGainM: s.Route.ElevationGainMeters,
		LodgingCount:   len(s.Lodging),
	}
	if withLodging {
		d.Lodging = s.Lodging
	}
	return d
}

// Summarize builds the overview of a planned trip. The state needs
// requirements, a route and segments.
func Summarize(state *model.ConversationState, withLodging bool) (RouteSummary, error) {
	if err := state.Require("route summary", model.FieldRequirements, model.FieldRoute, model.FieldSegments); err != nil {
		return RouteSummary{}, err
	}
	missing := pipeline.MissingLodging(state.Segments)
	if missing == nil {
		missing = []int{}
	}
	return RouteSummary{
		Origin:          state.Route.Origin.Name,
		Destination:     state.Route.Destination.Name,
		Waypoints:       lo.Map(state.Requirements.Intermediates, func(l model.Location, _ int) string { return l.Name }),
		TotalDistanceKM: roundKM(state.Route.DistanceMeters),
		ElevationGainM:  state.Route.ElevationGainMeters,
		DailyDistanceKM: state.Requirements.DailyDistanceKM,
		Days:            len(state.Segments),
		Segments: lo.Map(state.Segments, func(s model.Segment, _ int) DaySummary {
			return summarizeDay(s, withLodging)
		}),
		DaysWithoutLodging: missing,
	}, nil
}

func newRouteSummaryTool() Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name:        GetRouteSummary,
			Desc:        "Overview of the current route: totals, each day's distance and climbing, and which days still lack accommodation.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		Handle: func(_ context.Context, _ string, state *model.ConversationState) (Result, error) {
			sum, err := Summarize(state, false)
			if err != nil {
				return Result{}, err
			}
			return Result{Content: encode(sum)}, nil
		},
	}
}

type DayInput struct {
	DayNumber parsers.Number `json:"day_number"`
}

// segmentFor returns the segment for a 1-based day number.
func segmentFor(state *model.ConversationState, n parsers.Number) (int, model.Segment, error) {
	if len(state.Segments) == 0 {
		return 0, model.Segment{}, errx.Validation("the route has not been split into days yet", nil)
	}
	day := n.Int()
	if day < 1 || day > len(state.Segments) {
		return 0, model.Segment{}, errx.Validation(fmt.Sprintf("day_number must be between 1 and %d", len(state.Segments)), nil)
	}
	return day - 1, state.Segments[day-1], nil
}

func newSegmentDetailsTool() Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: GetSegmentDetails,
			Desc: "Full details for one day: start and end, distance, climbing and every accommodation option.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"day_number": {
					Type:     schema.Integer,
					Desc:     "Day to inspect, starting at 1.",
					Required: true,
				},
			}),
		},
		Handle: func(_ context.Context, args string, state *model.ConversationState) (Result, error) {
			var in DayInput
			if err := parsers.DecodeArguments(args, &in); err != nil {
				return Result{}, err
			}
			_, seg, err := segmentFor(state, in.DayNumber)
			if err != nil {
				return Result{}, err
			}
			return Result{Content: encode(summarizeDay(seg, true))}, nil
		},
	}
}
