package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikepack-planner/server/internal/agent/graph/tools"
	"github.com/bikepack-planner/server/internal/agent/model"
)

func TestSystemPromptsMentionTheirTools(t *testing.T) {
	ctx := context.Background()

	planner, err := Render(ctx, Planner, nil)
	require.NoError(t, err)
	assert.Contains(t, planner, tools.SubmitRequirements)

	optimiser, err := Render(ctx, Optimiser, nil)
	require.NoError(t, err)
	assert.Contains(t, optimiser, tools.ConfirmRoute)
	assert.Contains(t, optimiser, tools.AdjustDailyDistance)

	writer, err := Render(ctx, Writer, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, writer)
}

func TestReviewerModes(t *testing.T) {
	ctx := context.Background()
	for mode, want := range map[string]string{
		"initial":   "first time",
		"response":  "earlier version",
		"confirmed": "has confirmed",
	} {
		out, err := Render(ctx, Reviewer, map[string]any{"Mode": mode})
		require.NoError(t, err, mode)
		assert.Contains(t, out, want, mode)
	}
}

func TestOptimiserInstructions(t *testing.T) {
	ctx := context.Background()
	first, err := Render(ctx, OptimiseFirstPass, map[string]any{"Days": 3, "DailyKM": 60, "MissingDays": []int{2}})
	require.NoError(t, err)
	assert.Contains(t, first, "3 days")
	assert.Contains(t, first, "[2]")

	feedback, err := Render(ctx, OptimiseFeedback, map[string]any{"Days": 3, "DailyKM": 60})
	require.NoError(t, err)
	assert.Contains(t, feedback, tools.ConfirmRoute)
}

func TestRenderRoute(t *testing.T) {
	summary := tools.RouteSummary{
		Origin:          "Girona",
		Destination:     "Olot",
		Waypoints:       []string{"Banyoles"},
		TotalDistanceKM: 62.5,
		ElevationGainM:  900,
		DailyDistanceKM: 40,
		Days:            2,
		Segments: []tools.DaySummary{
			{Day: 1, From: "Girona", To: "Banyoles", DistanceKM: 30, Lodging: []model.Lodging{{Name: "Hostal", Rating: 4.5}}},
			{Day: 2, From: "Banyoles", To: "Olot", DistanceKM: 32.5},
		},
	}
	out, err := RenderRoute(context.Background(), summary, "gravel bike")
	require.NoError(t, err)
	assert.Contains(t, out, "From Girona to Olot via Banyoles")
	assert.Contains(t, out, "62.5 km in total")
	assert.Contains(t, out, "Hostal (4.5/5)")
	assert.Contains(t, out, "no accommodation found")
	assert.Contains(t, out, "Rider notes: gravel bike")
}
