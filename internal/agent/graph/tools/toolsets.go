// Package tools holds the Tool Dispatcher and the trip planning tools the
// models can call.
package tools

import (
	einocb "github.com/cloudwego/eino/callbacks"

	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	"github.com/bikepack-planner/server/internal/metrics"
)

const (
	GetLocation                 = "get_location"
	FindAccommodationAtLocation = "find_accommodation_at_location"
	SubmitRequirements          = "submit_requirements"

	ConfirmRoute               = "confirm_route"
	GetRouteSummary            = "get_route_summary"
	GetSegmentDetails          = "get_segment_details"
	SearchAccommodationForDay  = "search_accommodation_for_day"
	AdjustDailyDistance        = "adjust_daily_distance"
	AddIntermediateWaypoint    = "add_intermediate_waypoint"
	RemoveIntermediateWaypoint = "remove_intermediate_waypoint"
	RecalculateCompleteRoute   = "recalculate_complete_route"
	GetWeather                 = "get_weather"
)

// Deps are the collaborators the tools call into.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Weather  model.WeatherProvider
	Metrics  *metrics.Collectors
	// Callbacks observe every tool execution.
	Callbacks []einocb.Handler
}

// Planning is used while gathering requirements.
func Planning(d Deps) *Dispatcher {
	return NewDispatcher("planning", d.Metrics,
		newGetLocationTool(d.Pipeline.Geocoder),
		newFindAccommodationTool(d.Pipeline),
		newSubmitRequirementsTool(d.Pipeline),
	).WithCallbacks(d.Callbacks...)
}

// Optimization inspects and edits a computed route.
func Optimization(d Deps) *Dispatcher {
	return NewDispatcher("optimization", d.Metrics,
		newConfirmRouteTool(),
		newRouteSummaryTool(),
		newSegmentDetailsTool(),
		newSearchAccommodationForDayTool(d.Pipeline),
		newAdjustDailyDistanceTool(d.Pipeline),
		newAddWaypointTool(d.Pipeline),
		newRemoveWaypointTool(d.Pipeline),
		newRecalculateRouteTool(d.Pipeline),
		newWeatherTool(d.Weather),
	).WithCallbacks(d.Callbacks...)
}

// Review only offers auxiliary lookups.
func Review(d Deps) *Dispatcher {
	return NewDispatcher("review", d.Metrics, newWeatherTool(d.Weather)).WithCallbacks(d.Callbacks...)
}
