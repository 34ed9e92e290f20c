package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikepack-planner/server/internal/agent/graph/observers"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

type fakeGeo struct{}

func (fakeGeo) Geocode(_ context.Context, name string) (model.Location, error) {
	switch name {
	case "Atlantis":
		return model.Location{}, errx.NotFound(fmt.Sprintf("could not find coordinates for %q", name), nil)
	case "Offline":
		return model.Location{}, errx.External("geocode request failed", errors.New("503"))
	}
	return model.Location{Name: name, Coordinates: model.Coordinates{Latitude: 42, Longitude: float64(len(name))}}, nil
}

func (fakeGeo) ReverseGeocode(context.Context, model.Coordinates) (string, error) { return "x", nil }

type fakeRouter struct{}

func (fakeRouter) FetchRoute(_ context.Context, o, d model.Location, via []model.Location) (model.Route, error) {
	return model.Route{Polyline: "p", Origin: o, Destination: d, DistanceMeters: 100000 + 20000*len(via)}, nil
}

type fakeSegmenter struct{}

func (fakeSegmenter) Segment(_ context.Context, r model.Route, daily int) ([]model.Segment, error) {
	days := (r.DistanceMeters/1000 + daily - 1) / daily
	segs := make([]model.Segment, days)
	prev := r.Origin
	for i := range segs {
		dest := model.Location{Name: fmt.Sprintf("stop-%d", i+1), Coordinates: model.Coordinates{Latitude: float64(i + 1)}}
		if i == days-1 {
			dest = r.Destination
		}
		segs[i] = model.Segment{Day: i + 1, Route: model.Route{Origin: prev, Destination: dest, DistanceMeters: r.DistanceMeters / days}}
		prev = dest
	}
	return segs, nil
}

type fakeLodging struct{}

func (fakeLodging) SearchLodging(_ context.Context, pt model.Coordinates, radiusKM float64) ([]model.Lodging, error) {
	if radiusKM < 10 && pt.Latitude == 1 {
		return []model.Lodging{}, nil
	}
	return []model.Lodging{{Name: fmt.Sprintf("inn %.0f/%.0f", pt.Latitude, radiusKM)}}, nil
}

type fakeWeather struct{}

func (fakeWeather) Weather(_ context.Context, name, units string, forecast bool) (model.WeatherReport, error) {
	return model.WeatherReport{Location: name, Units: "celsius", Temperature: 18, Conditions: "clear sky"}, nil
}

func testDeps() Deps {
	p := pipeline.New(fakeGeo{}, fakeRouter{}, fakeSegmenter{}, fakeLodging{}, model.LodgingConfig{RadiusKM: 5, Parallelism: 2})
	return Deps{Pipeline: p, Weather: fakeWeather{}, Callbacks: []einocb.Handler{observers.NewAllCallbacks()}}
}

// plannedState is a trip from Girona to Olot split into two days.
func plannedState(t *testing.T) *model.ConversationState {
	t.Helper()
	p := testDeps().Pipeline
	plan, err := p.Replan(context.Background(), model.Requirements{
		Origin:          model.Location{Name: "Girona"},
		Destination:     model.Location{Name: "Olot"},
		DailyDistanceKM: 50,
	})
	require.NoError(t, err)
	return model.NewConversationState().Apply(plan.Patch())
}

func call(name, args string) model.ToolRequest {
	return model.ToolRequest{ID: "call-" + name, Name: name, Arguments: args}
}

func TestDispatcherRejectsUnknownTool(t *testing.T) {
	d := Review(testDeps())
	_, err := d.Execute(context.Background(), call("confirm_route", "{}"), model.NewConversationState())
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.True(t, errx.IsKind(err, errx.KindUnknownTool))
}

func TestToolsetsExposeSchemas(t *testing.T) {
	deps := testDeps()
	assert.Len(t, Planning(deps).Infos(), 3)
	assert.Len(t, Optimization(deps).Infos(), 9)
	assert.True(t, Planning(deps).Has(SubmitRequirements))
	assert.False(t, Review(deps).Has(ConfirmRoute))
}

func TestExecuteAllConfirmRoute(t *testing.T) {
	d := Optimization(testDeps())
	state := plannedState(t)

	patch, err := d.ExecuteAll(context.Background(), "optimization_tools",
		[]model.ToolRequest{call(ConfirmRoute, `{"reason":"looks good"}`)}, state)
	require.NoError(t, err)

	require.NotNil(t, patch.UserConfirmed)
	assert.True(t, *patch.UserConfirmed)
	require.Len(t, patch.Messages, 1)
	msg := patch.Messages[0]
	assert.Equal(t, model.RoleToolResult, msg.Role)
	assert.Equal(t, "call-confirm_route", msg.ToolCallID)
	assert.Equal(t, "optimization_tools", msg.Node)
	assert.False(t, state.UserConfirmed, "input state must not change")
}

func TestArgumentErrorsGoBackToTheModel(t *testing.T) {
	d := Optimization(testDeps())
	state := plannedState(t)

	patch, err := d.ExecuteAll(context.Background(), "optimization_tools", []model.ToolRequest{
		call(GetSegmentDetails, `{"day_number": 9}`),
		call(RemoveIntermediateWaypoint, `{"place_name":"Banyoles"}`),
	}, state)
	require.NoError(t, err)
	require.Len(t, patch.Messages, 2)
	assert.True(t, strings.HasPrefix(patch.Messages[0].Content, "error: day_number must be between 1 and"))
	assert.Contains(t, patch.Messages[1].Content, "current waypoints: none")
	assert.Nil(t, patch.Segments)
	assert.Nil(t, patch.Requirements)
}

func TestExternalErrorsFailTheCall(t *testing.T) {
	d := Planning(testDeps())
	_, err := d.Execute(context.Background(), call(GetLocation, `{"place_name":"Offline"}`), model.NewConversationState())
	assert.True(t, errx.IsKind(err, errx.KindExternal))
}

func TestSubmitRequirementsGeocodes(t *testing.T) {
	d := Planning(testDeps())
	res, err := d.Execute(context.Background(), call(SubmitRequirements,
		`{"origin":"Girona","destination":"Olot","intermediates":["Banyoles"],"daily_distance_km":"60"}`), model.NewConversationState())
	require.NoError(t, err)
	require.NotNil(t, res.Patch.Requirements)
	req := res.Patch.Requirements
	assert.Equal(t, 60, req.DailyDistanceKM)
	assert.False(t, req.Origin.Coordinates.IsZero())
	require.Len(t, req.Intermediates, 1)
	assert.False(t, req.Intermediates[0].Coordinates.IsZero())

	res, err = d.Execute(context.Background(), call(SubmitRequirements, `{"origin":"Girona","destination":"Olot","daily_distance_km":0}`), model.NewConversationState())
	require.NoError(t, err)
	assert.True(t, res.Patch.IsEmpty())
	assert.Contains(t, res.Content, "error:")
}

func TestAdjustDailyDistanceResegments(t *testing.T) {
	d := Optimization(testDeps())
	state := plannedState(t)
	require.Len(t, state.Segments, 2)

	res, err := d.Execute(context.Background(), call(AdjustDailyDistance, `{"daily_distance_km": 25}`), state)
	require.NoError(t, err)
	require.NotNil(t, res.Patch.Requirements)
	assert.Equal(t, 25, res.Patch.Requirements.DailyDistanceKM)
	assert.Len(t, res.Patch.Segments, 4)

	next := state.Apply(res.Patch)
	assert.NoError(t, next.Validate())
}

func TestAddThenRemoveWaypoint(t *testing.T) {
	d := Optimization(testDeps())
	state := plannedState(t)

	patch, err := d.ExecuteAll(context.Background(), "optimization_tools", []model.ToolRequest{
		call(AddIntermediateWaypoint, `{"place_name":"Banyoles"}`),
		call(GetRouteSummary, ``),
	}, state)
	require.NoError(t, err)
	next := state.Apply(patch)
	require.Len(t, next.Requirements.Intermediates, 1)
	assert.Equal(t, 120000, next.Route.DistanceMeters)

	var sum RouteSummary
	require.NoError(t, json.Unmarshal([]byte(patch.Messages[1].Content), &sum))
	assert.Equal(t, []string{"Banyoles"}, sum.Waypoints)
	assert.Equal(t, 3, sum.Days)

	res, err := d.Execute(context.Background(), call(RemoveIntermediateWaypoint, `{"place_name":" banyoles "}`), next)
	require.NoError(t, err)
	assert.Empty(t, res.Patch.Requirements.Intermediates)
	assert.Equal(t, 100000, res.Patch.Route.DistanceMeters)
}

func TestSearchAccommodationForDayReplacesOptions(t *testing.T) {
	d := Optimization(testDeps())
	state := plannedState(t)
	require.False(t, state.Segments[0].HasLodging())

	res, err := d.Execute(context.Background(), call(SearchAccommodationForDay, `{"day_number":1,"radius_km":20}`), state)
	require.NoError(t, err)
	require.Len(t, res.Patch.Segments, 2)
	assert.Equal(t, "inn 1/20", res.Patch.Segments[0].Lodging[0].Name)
	assert.Equal(t, state.Segments[1].Lodging, res.Patch.Segments[1].Lodging)
}

func TestWeatherToolIsPlain(t *testing.T) {
	d := Review(testDeps())
	res, err := d.Execute(context.Background(), call(GetWeather, `{"location_name":"Olot"}`), model.NewConversationState())
	require.NoError(t, err)
	assert.True(t, res.Patch.IsEmpty())
	assert.Contains(t, res.Content, `"conditions":"clear sky"`)
}
