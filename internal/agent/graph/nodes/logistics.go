package nodes

import (
	"context"

	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// NewRouteNode computes the route for the validated requirements.
func NewRouteNode(p *pipeline.Pipeline) Node {
	return Node{
		Name:     NodeRouteCalculation,
		Requires: []model.Field{model.FieldRequirements},
		Run: func(ctx context.Context, s *model.ConversationState) (model.StatePatch, error) {
			route, err := p.Route(ctx, *s.Requirements)
			if err != nil {
				return model.StatePatch{}, err
			}
			logx.Info().
				Float64("distance_km", route.DistanceKM()).
				Int("elevation_gain_m", route.ElevationGainMeters).
				Msg("Route calculated")
			return model.StatePatch{Route: &route}, nil
		},
		Next:     always(NodeSegmentation),
		Branches: branches(NodeSegmentation),
	}
}

// NewSegmentationNode splits the route into days.
func NewSegmentationNode(p *pipeline.Pipeline) Node {
	return Node{
		Name:     NodeSegmentation,
		Requires: []model.Field{model.FieldRoute, model.FieldRequirements},
		Run: func(ctx context.Context, s *model.ConversationState) (model.StatePatch, error) {
			segs, err := p.Segments(ctx, *s.Route, s.Requirements.DailyDistanceKM)
			if err != nil {
				return model.StatePatch{}, err
			}
			logx.Info().Int("days", len(segs)).Msg("Route segmented")
			return model.StatePatch{Segments: segs}, nil
		},
		Next:     always(NodeLodgingSearch),
		Branches: branches(NodeLodgingSearch),
	}
}

// NewLodgingNode searches lodging for every day. A fully covered route
// needs no optimization pass.
func NewLodgingNode(p *pipeline.Pipeline) Node {
	return Node{
		Name:     NodeLodgingSearch,
		Requires: []model.Field{model.FieldSegments},
		Run: func(ctx context.Context, s *model.ConversationState) (model.StatePatch, error) {
			segs, err := p.AttachLodging(ctx, s.Segments)
			if err != nil {
				return model.StatePatch{}, err
			}
			patch := model.StatePatch{Segments: segs}
			missing := pipeline.MissingLodging(segs)
			if len(missing) == 0 {
				patch.CriticalOptimizationDone = model.Bool(true)
			}
			logx.Info().Int("days", len(segs)).Ints("days_without_lodging", missing).Msg("Lodging searched")
			return patch, nil
		},
		Next:     NewLodgingCondition(),
		Branches: branches(NodeReview, NodeOptimization),
	}
}
