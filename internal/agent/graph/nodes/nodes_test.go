package nodes

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikepack-planner/server/internal/agent/graph/conversations"
	"github.com/bikepack-planner/server/internal/agent/graph/tools"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline/pipelinetest"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

type call struct {
	node    string
	system  string
	history []model.Message
	extra   []*schema.Message
}

type fakeInvoker struct {
	reply model.Message
	err   error
	calls []call
}

func (f *fakeInvoker) Invoke(_ context.Context, node, system string, history []model.Message, extra ...*schema.Message) (model.Message, error) {
	f.calls = append(f.calls, call{node: node, system: system, history: history, extra: extra})
	if f.err != nil {
		return model.Message{}, f.err
	}
	out := f.reply
	out.Node = node
	return out, nil
}

func (f *fakeInvoker) last(t *testing.T) call {
	t.Helper()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

// plannedState is a two day trip from Ghent to Bruges.
func plannedState(t *testing.T, fakes *pipelinetest.Fakes) *model.ConversationState {
	t.Helper()
	plan, err := fakes.Pipeline().Replan(context.Background(), model.Requirements{
		Origin:          model.Location{Name: "Ghent"},
		Destination:     model.Location{Name: "Bruges"},
		DailyDistanceKM: 50,
		Context:         "gravel bike",
	})
	require.NoError(t, err)
	s := model.NewConversationState().Apply(plan.Patch())
	s.Messages = []model.Message{model.UserMessage("Ghent to Bruges, 50 km a day")}
	return s
}

func TestPlanningNodeSeesWholeLog(t *testing.T) {
	inv := &fakeInvoker{reply: model.AssistantMessage("", "Where do you start?", nil)}
	s := model.NewConversationState()
	s.Messages = []model.Message{model.UserMessage("Plan a trip")}

	patch, err := NewPlanningNode(inv).Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, patch.Messages, 1)
	assert.Equal(t, NodePlanning, patch.Messages[0].Node)

	c := inv.last(t)
	assert.Contains(t, c.system, tools.SubmitRequirements)
	assert.Equal(t, s.Messages, c.history)
	assert.Empty(t, c.extra)
}

func TestRequirementsNode(t *testing.T) {
	fakes := pipelinetest.NewFakes()
	node := NewRequirementsNode(tools.Planning(tools.Deps{Pipeline: fakes.Pipeline(), Weather: fakes.Weather}))

	s := withLast(model.AssistantMessage(NodePlanning, "", []model.ToolRequest{
		{ID: "loc", Name: tools.GetLocation, Arguments: `{"place_name":"Ghent"}`},
		{ID: "sub", Name: tools.SubmitRequirements, Arguments: `{"origin":"Ghent","destination":"Bruges","daily_distance_km":"60 km"}`},
	}))
	patch, err := node.Run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, patch.Requirements)
	assert.Equal(t, 60, patch.Requirements.DailyDistanceKM)
	assert.Equal(t, 40.0, patch.Requirements.Origin.Coordinates.Latitude)
	require.Len(t, patch.Messages, 2)
	assert.Equal(t, "loc", patch.Messages[0].ToolCallID)
	assert.Equal(t, "sub", patch.Messages[1].ToolCallID)
	assert.Equal(t, NodeRequirementsValidation, patch.Messages[1].Node)
}

func TestRequirementsNodeRejectsInvalidSubmission(t *testing.T) {
	fakes := pipelinetest.NewFakes()
	node := NewRequirementsNode(tools.Planning(tools.Deps{Pipeline: fakes.Pipeline(), Weather: fakes.Weather}))

	s := withLast(model.AssistantMessage(NodePlanning, "", []model.ToolRequest{
		{ID: "sub", Name: tools.SubmitRequirements, Arguments: `{"origin":"Ghent","destination":"Bruges","daily_distance_km":0}`},
	}))
	_, err := node.Run(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errx.IsKind(err, errx.KindValidation))
	assert.Contains(t, err.Error(), "daily_distance_km")

	s = withLast(asking(NodePlanning, tools.GetLocation))
	_, err = node.Run(context.Background(), s)
	assert.True(t, errx.IsKind(err, errx.KindValidation))
}

func TestLodgingNodeMarksCoveredRoutes(t *testing.T) {
	fakes := pipelinetest.NewFakes()
	s := plannedState(t, fakes)

	patch, err := NewLodgingNode(fakes.Pipeline()).Run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, patch.CriticalOptimizationDone)
	assert.True(t, *patch.CriticalOptimizationDone)

	fakes.Lodging.Sparse(1, 10)
	patch, err = NewLodgingNode(fakes.Pipeline()).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Nil(t, patch.CriticalOptimizationDone)
	assert.Empty(t, patch.Segments[0].Lodging)
	assert.NotEmpty(t, patch.Segments[1].Lodging)
}

func TestRouteAndSegmentationNodes(t *testing.T) {
	fakes := pipelinetest.NewFakes()
	s := model.NewConversationState()
	s.Requirements = &model.Requirements{
		Origin:          model.Location{Name: "Ghent", Coordinates: model.Coordinates{Latitude: 51, Longitude: 3.7}},
		Destination:     model.Location{Name: "Bruges", Coordinates: model.Coordinates{Latitude: 51.2, Longitude: 3.2}},
		DailyDistanceKM: 40,
	}

	patch, err := NewRouteNode(fakes.Pipeline()).Run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, patch.Route)
	s = s.Apply(patch)

	patch, err = NewSegmentationNode(fakes.Pipeline()).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, patch.Segments, 3)
	assert.NoError(t, model.ValidateChain(*s.Route, patch.Segments))
}

func TestOptimizationFirstPass(t *testing.T) {
	fakes := pipelinetest.NewFakes()
	fakes.Lodging.Sparse(1, 10)
	s := plannedState(t, fakes)
	s.Segments[0].Lodging = []model.Lodging{}
	s.AwaitingUserResponse = true

	inv := &fakeInvoker{reply: model.AssistantMessage("", "Nothing critical.", nil)}
	patch, err := NewOptimizationNode(inv).Run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, patch.AwaitingUserResponse)
	assert.False(t, *patch.AwaitingUserResponse)

	c := inv.last(t)
	require.Len(t, c.extra, 1)
	assert.Contains(t, c.extra[0].Content, "First look")
	assert.Contains(t, c.extra[0].Content, "no accommodation yet: 1")
	assert.Contains(t, c.system, tools.ConfirmRoute)
}

func TestOptimizationFeedbackMode(t *testing.T) {
	fakes := pipelinetest.NewFakes()
	s := plannedState(t, fakes)
	s.CriticalOptimizationDone = true
	s.Messages = append(s.Messages,
		model.AssistantMessage(NodeReview, "Two days, 100 km.", nil),
		model.UserMessage("looks good"),
	)

	inv := &fakeInvoker{reply: model.AssistantMessage("", "", []model.ToolRequest{{ID: "c", Name: tools.ConfirmRoute, Arguments: "{}"}})}
	_, err := NewOptimizationNode(inv).Run(context.Background(), s)
	require.NoError(t, err)

	c := inv.last(t)
	assert.Contains(t, c.extra[0].Content, "The rider answered")
	assert.Contains(t, c.extra[0].Content, "2 days")
	assert.Equal(t, "looks good", c.history[len(c.history)-1].Content)
}

func TestOptimizationModeFollowsFlag(t *testing.T) {
	fakes := pipelinetest.NewFakes()
	s := plannedState(t, fakes)
	// a user message after a review does not switch modes while the
	// first pass is still outstanding
	s.Messages = append(s.Messages,
		model.AssistantMessage(NodeReview, "Two days, 100 km.", nil),
		model.UserMessage("what about day 2?"),
	)

	inv := &fakeInvoker{reply: model.AssistantMessage("", "Nothing critical.", nil)}
	_, err := NewOptimizationNode(inv).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, inv.last(t).extra[0].Content, "First look")

	s.CriticalOptimizationDone = true
	_, err = NewOptimizationNode(inv).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, inv.last(t).extra[0].Content, "The rider answered")
}

func TestReviewMode(t *testing.T) {
	fakes := pipelinetest.NewFakes()
	s := plannedState(t, fakes)
	assert.Equal(t, ReviewInitial, ReviewMode(s))

	s.Messages = append(s.Messages,
		model.AssistantMessage(NodeReview, "", []model.ToolRequest{{ID: "w", Name: tools.GetWeather, Arguments: "{}"}}),
		model.ToolResultMessage(NodeReviewTools, "w", tools.GetWeather, `{"temperature":17}`),
	)
	assert.Equal(t, ReviewInitial, ReviewMode(s))

	s.Messages = append(s.Messages,
		model.AssistantMessage(NodeReview, "Here you go", nil),
		model.UserMessage("add a stop in Eeklo"),
	)
	assert.Equal(t, ReviewResponse, ReviewMode(s))

	s.UserConfirmed = true
	assert.Equal(t, ReviewConfirmed, ReviewMode(s))
}

func TestReviewNodeBuildsSummaryContext(t *testing.T) {
	fakes := pipelinetest.NewFakes()
	s := plannedState(t, fakes)
	s.Messages = append(s.Messages,
		model.AssistantMessage(NodeOptimization, "", []model.ToolRequest{{ID: "w1", Name: tools.GetWeather, Arguments: "{}"}}),
		model.ToolResultMessage(NodeOptimizationTools, "w1", tools.GetWeather, `{"conditions":"Partly cloudy"}`),
		model.AssistantMessage(NodeOptimization, "Done.", nil),
		model.AssistantMessage(NodeReview, "", []model.ToolRequest{{ID: "w2", Name: tools.GetWeather, Arguments: "{}"}}),
		model.ToolResultMessage(NodeReviewTools, "w2", tools.GetWeather, `{"conditions":"Rain"}`),
	)

	inv := &fakeInvoker{reply: model.AssistantMessage("", "## Your trip", nil)}
	mm := conversations.NewMessagesManager(model.ConversationConfig{})
	patch, err := NewReviewNode(inv, mm).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "## Your trip", patch.Messages[0].Content)

	c := inv.last(t)
	require.Len(t, c.history, 3)
	request := c.history[0].Content
	assert.Equal(t, model.RoleUser, c.history[0].Role)
	assert.Contains(t, request, "From Ghent to Bruges")
	assert.Contains(t, request, "Day 2:")
	assert.Contains(t, request, "Rider notes: gravel bike")
	assert.Contains(t, request, "Partly cloudy")
	assert.False(t, strings.Contains(request, "Rain"))
	assert.Equal(t, "w2", c.history[2].ToolCallID)
	assert.Contains(t, c.system, "first time")
}

func TestWriterNode(t *testing.T) {
	fakes := pipelinetest.NewFakes()
	s := plannedState(t, fakes)
	s.UserConfirmed = true

	inv := &fakeInvoker{reply: model.AssistantMessage("", "# Day 1", nil)}
	patch, err := NewWriterNode(inv).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, NodeItineraryWriting, patch.Messages[0].Node)

	c := inv.last(t)
	require.Len(t, c.history, 1)
	assert.Contains(t, c.history[0].Content, "confirmed this route")
	assert.Contains(t, c.history[0].Content, "Inn ")
}

func TestModelFailurePropagates(t *testing.T) {
	inv := &fakeInvoker{err: errx.External("model call failed", nil)}
	_, err := NewPlanningNode(inv).Run(context.Background(), withLast(model.UserMessage("hi")))
	assert.True(t, errx.IsKind(err, errx.KindExternal))
}
